package objform

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/objform/objform/trampoline"
)

// An Engine converts object graphs to and from the serialized form E
// of a single [Format]. The zero value is not usable; construct
// engines with [New].
//
// Registration methods (Register, RegisterName, RegisterHooks, and
// the package-level Register* functions) must all complete before the
// first Serialize or Deserialize call; after that, an engine is safe
// for concurrent use.
type Engine[E any] struct {
	format Format[E]
	opts   options
	elem   reflect.Type

	names     map[string]reflect.Type
	tags      map[reflect.Type]typeTag
	subs      map[reflect.Type]*substitution
	namedSubs map[string]*substitution
	enums     map[reflect.Type]*enumInfo
	hooks     map[reflect.Type]Hooks

	encoders cache[encoderFunc[E]]
	decoders cache[decoderFunc[E]]
}

type typeTag struct {
	name      string
	qualified bool
}

// New returns an engine producing forms of the given format.
func New[E any](f Format[E], opts ...Option) *Engine[E] {
	en := &Engine[E]{
		format:    f,
		elem:      reflect.TypeFor[E](),
		names:     make(map[string]reflect.Type),
		tags:      make(map[reflect.Type]typeTag),
		subs:      make(map[reflect.Type]*substitution),
		namedSubs: make(map[string]*substitution),
		enums:     make(map[reflect.Type]*enumInfo),
		hooks:     make(map[reflect.Type]Hooks),
	}
	for _, o := range opts {
		o(&en.opts)
	}
	return en
}

// Register records the type of sample under its fully qualified name,
// making it usable at dynamically typed locations in a graph. Only
// registered types (and plain scalars, whose forms speak for
// themselves) may appear behind an interface.
func (en *Engine[E]) Register(sample any) {
	t := typeOf(sample)
	en.registerType(qualifiedName(t), true, t)
}

// RegisterName records the type of sample under a caller-chosen short
// name. Short names decouple the wire format from Go package paths, at
// the cost of managing uniqueness by hand.
func (en *Engine[E]) RegisterName(name string, sample any) {
	en.registerType(name, false, typeOf(sample))
}

func (en *Engine[E]) registerType(name string, qualified bool, t reflect.Type) {
	if name == "" {
		panic("objform: empty type name")
	}
	if prev, ok := en.names[name]; ok && prev != t {
		panic(fmt.Sprintf("objform: name %q already registered for %s", name, prev))
	}
	en.names[name] = t
	en.tags[t] = typeTag{name: name, qualified: qualified}
}

func typeOf(sample any) reflect.Type {
	t := reflect.TypeOf(sample)
	if t == nil {
		panic("objform: cannot register a nil interface")
	}
	return t
}

// qualifiedName derives the stable wire name of t: the package path
// and type name, with a "*" prefix per level of pointer indirection.
// Unnamed types fall back to their Go syntax.
func qualifiedName(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return "*" + qualifiedName(t.Elem())
	}
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// Serialize converts the object graph rooted at v into its serialized
// form. Under [CollectErrors], a non-nil error may accompany a usable
// form in which the failed subtrees are null.
func (en *Engine[E]) Serialize(v any) (E, error) {
	if v == nil {
		return en.format.Null(), nil
	}
	val := reflect.ValueOf(v)
	st := &encState[E]{en: en}
	res := trampoline.Run(en.encoderFor(val.Type())(st, val)).(encResult[E])
	if res.err != nil {
		var zero E
		return zero, res.err
	}
	if len(st.errs) > 0 {
		return res.form, errors.Join(st.errs...)
	}
	return res.form, nil
}

// Deserialize reconstructs the graph serialized in form into the
// variable pointed to by into, reusing instances into already holds
// where possible. Members missing from a record form keep the values
// the target already has.
func (en *Engine[E]) Deserialize(form E, into any) error {
	val := reflect.ValueOf(into)
	if val.Kind() != reflect.Pointer || val.IsNil() {
		return fmt.Errorf("objform: deserialize target must be a non-nil pointer, not %T", into)
	}
	st := &decState[E]{en: en}
	res := trampoline.Run(en.decoderFor(val.Type().Elem())(st, form, val.Elem())).(decResult)
	if res.err != nil {
		return res.err
	}
	if len(st.errs) > 0 {
		return errors.Join(st.errs...)
	}
	return nil
}
