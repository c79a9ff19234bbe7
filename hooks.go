package objform

// Lifecycle hooks run around the serialization of a single value.
// A type participates either by implementing one of the interfaces
// below, or externally via [Engine.RegisterHooks] when the type cannot
// be modified. Both may apply to the same type; interface hooks run
// closest to the value.
//
// Hooks do not run for back-references: a shared object is observed
// once, at its defining occurrence.

// BeforeSerializer runs before a value's members are traversed.
// Implementations on a pointer receiver require the value to be
// addressable where it appears in the graph.
type BeforeSerializer interface {
	BeforeSerialize() error
}

// AfterSerializer runs after a value has produced its serialized form,
// and may inspect the form. Returning an error fails the value.
type AfterSerializer interface {
	AfterSerialize(form any) error
}

// BeforeDeserializer runs after a value's instance exists but before
// its members are populated, with access to the incoming form.
type BeforeDeserializer interface {
	BeforeDeserialize(form any) error
}

// AfterDeserializer runs after a value has been fully populated.
type AfterDeserializer interface {
	AfterDeserialize(form any) error
}

// Hooks carries externally registered lifecycle callbacks for one
// type. Any field may be nil.
type Hooks struct {
	BeforeSerialize   func(v any) error
	AfterSerialize    func(v, form any) error
	BeforeDeserialize func(v, form any) error
	AfterDeserialize  func(v, form any) error
}

// RegisterHooks attaches h to the type of sample. Registration must
// happen before the type is first serialized or deserialized on this
// engine.
func (en *Engine[E]) RegisterHooks(sample any, h Hooks) {
	en.hooks[typeOf(sample)] = h
}
