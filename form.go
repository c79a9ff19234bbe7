package objform

// A Member is one named member of a record form. Owner optionally
// names the type that declares the member; it is only needed to
// disambiguate two same-named members declared at different levels of
// a type hierarchy, and is empty otherwise.
type Member[E any] struct {
	Name  string
	Owner string
	Value E
}

// A MapEntry is one key/value pair of a keyed-map form.
type MapEntry[E any] struct {
	Key   E
	Value E
}

// Format is the capability set a serialized representation provides
// to the engine. E is the format's opaque serialized-form type; the
// Format allocates and owns every E, and the engine never modifies
// one after construction except through SetTag and MarkID.
//
// The engine contains no format-specific logic: every branch on the
// concrete shape of a serialized value goes through this interface,
// which is what lets one engine drive multiple physical formats.
type Format[E any] interface {
	// Null returns the null marker; IsNull recognizes it.
	Null() E
	IsNull(e E) bool

	// Scalar constructs a primitive form. v is one of bool, a signed
	// or unsigned integer of any width, float32, float64, string,
	// []byte, or time.Time. ScalarValue decomposes one; the returned
	// value need not have the exact width it was constructed with, as
	// long as it preserves the stored value.
	Scalar(v any) (E, error)
	ScalarValue(e E) (any, bool)

	// List constructs an ordered list form; Elems decomposes one.
	List(elems []E) E
	Elems(e E) ([]E, bool)

	// Map constructs a keyed-map form for primitive-keyed maps;
	// Entries decomposes one.
	Map(entries []MapEntry[E]) E
	Entries(e E) ([]MapEntry[E], bool)

	// Record constructs a named-member form; Members decomposes one.
	Record(members []Member[E]) E
	Members(e E) ([]Member[E], bool)

	// SetTag attaches a type tag to e: a string identifying the actual
	// runtime type of the serialized value. qualified distinguishes a
	// fully qualified identifier from a short, caller-chosen one. Tag
	// retrieves the tag, reporting ok=false when none is attached.
	SetTag(e E, tag string, qualified bool)
	Tag(e E) (tag string, qualified, ok bool)

	// Ref constructs a back-reference meaning "reuse the value whose
	// form is marked with id". RefID recognizes one.
	Ref(id int) E
	RefID(e E) (int, bool)

	// MarkID marks e as referable under id; the mark may be attached
	// after e has been placed in an enclosing form. MarkedID retrieves
	// it. Referable reports whether e can carry a mark at all; the
	// engine falls back to re-serializing shared values whose forms
	// cannot.
	MarkID(e E, id int)
	MarkedID(e E) (int, bool)
	Referable(e E) bool
}
