package objform

import (
	"iter"
	"reflect"
	"sync"
)

// Category is the closed classification that selects the traversal
// strategy for a composite type. It is determined once per type and
// cached for the process lifetime.
type Category int

const (
	// CategoryRecord is a plain record: members traversed by name.
	CategoryRecord Category = iota
	// CategoryArray covers arrays and slices, including
	// multi-dimensional ones via nesting.
	CategoryArray
	// CategorySimpleKeyedMap is a map whose key type has a primitive
	// encoding.
	CategorySimpleKeyedMap
	// CategorySequence is a general collection: an implementer of the
	// [Sequence] contract, or a map whose keys are not primitive,
	// which degrades to a sequence of key/value pairs.
	CategorySequence
	// CategoryTuple is a fixed-arity heterogeneous product: an
	// implementer of the [Tuple] contract.
	CategoryTuple
)

func (c Category) String() string {
	switch c {
	case CategoryRecord:
		return "record"
	case CategoryArray:
		return "array"
	case CategorySimpleKeyedMap:
		return "simple-keyed map"
	case CategorySequence:
		return "sequence"
	case CategoryTuple:
		return "tuple"
	}
	return "invalid"
}

// Sequence is the collection contract for types that are neither
// arrays nor simple-keyed maps. Elements iterates the collection in
// its natural order; Append inserts one element.
//
// Deserialization appends into the existing instance when the target
// already holds one, so types may pre-allocate internal storage in
// their constructors.
type Sequence interface {
	Len() int
	Elements() iter.Seq[any]
	Append(v any) error
}

// LIFO marks a Sequence whose natural iteration order is
// last-in-first-out, such as a stack. The engine un-reverses such a
// sequence when serializing, so the wire carries insertion order, and
// relies on Append's push semantics to restore the order on read.
type LIFO interface {
	Sequence
	LIFO()
}

// ElemTyped is optionally implemented by a Sequence to declare its
// element type. Without it, elements are treated as dynamically typed
// and each one carries a type tag.
type ElemTyped interface {
	ElemType() reflect.Type
}

// Tuple is the contract for fixed-arity heterogeneous products. A
// serialized tuple must have exactly Arity elements; a mismatch is a
// structural error.
type Tuple interface {
	Arity() int
	At(i int) any
	TypeAt(i int) reflect.Type
	SetAt(i int, v any) error
}

var (
	sequenceType = reflect.TypeFor[Sequence]()
	tupleType    = reflect.TypeFor[Tuple]()
)

var categories sync.Map // reflect.Type → Category

// categoryOf classifies t. First match wins: array/slice, then
// primitive-keyed map, then Sequence implementer, then remaining maps
// (degraded to sequence-of-pairs), then Tuple implementer, then
// record. This precedence is deliberate policy: changing it changes
// the wire format.
func categoryOf(t reflect.Type) Category {
	if c, ok := categories.Load(t); ok {
		return c.(Category)
	}
	c := classify(t)
	categories.Store(t, c)
	return c
}

func classify(t reflect.Type) Category {
	switch {
	case t.Kind() == reflect.Array, t.Kind() == reflect.Slice:
		return CategoryArray
	case t.Kind() == reflect.Map && keyKinds.Has(t.Key().Kind()):
		return CategorySimpleKeyedMap
	case implementsOrPointer(t, sequenceType):
		return CategorySequence
	case t.Kind() == reflect.Map:
		// Non-primitive keys have no unambiguous primitive encoding;
		// the map degrades to a sequence of key/value pairs.
		return CategorySequence
	case implementsOrPointer(t, tupleType):
		return CategoryTuple
	}
	return CategoryRecord
}

func implementsOrPointer(t, iface reflect.Type) bool {
	if t.Implements(iface) {
		return true
	}
	return t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(iface)
}
