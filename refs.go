package objform

import (
	"reflect"
)

// encEntry tracks one identity-bearing object during serialization.
// The id stays zero until a second visit actually needs a
// back-reference; ids are assigned lazily so that unshared objects
// carry no marks at all.
type encEntry[E any] struct {
	id   int
	form E
	done bool
}

// encRefs is the serialize-side reference table, scoped to one
// top-level call: identity key → entry.
type encRefs[E any] struct {
	byKey  map[any]*encEntry[E]
	nextID int
}

func (r *encRefs[E]) lookup(key any) *encEntry[E] {
	return r.byKey[key]
}

func (r *encRefs[E]) add(key any) *encEntry[E] {
	if r.byKey == nil {
		r.byKey = make(map[any]*encEntry[E])
	}
	e := &encEntry[E]{}
	r.byKey[key] = e
	return e
}

func (r *encRefs[E]) assignID(e *encEntry[E]) int {
	if e.id == 0 {
		r.nextID++
		e.id = r.nextID
	}
	return e.id
}

// decEntry is the deserialize-side deferred accessor for one id. The
// target may be referenced again before all of its own members are
// populated, so the entry stores how to obtain the value rather than
// the value itself; get evaluates that on first use and memoizes.
type decEntry struct {
	resolve func() (reflect.Value, error)
	val     reflect.Value
	err     error
	done    bool
}

func (e *decEntry) get() (reflect.Value, error) {
	if !e.done {
		e.val, e.err = e.resolve()
		e.done = true
	}
	return e.val, e.err
}

// decRefs is the deserialize-side reference table: id → deferred
// accessor, scoped to one top-level call.
type decRefs struct {
	byID map[int]*decEntry
}

func (r *decRefs) register(id int, resolve func() (reflect.Value, error)) {
	if r.byID == nil {
		r.byID = make(map[int]*decEntry)
	}
	r.byID[id] = &decEntry{resolve: resolve}
}

func (r *decRefs) lookup(id int) *decEntry {
	return r.byID[id]
}

// identKey is the default identity comparer: pointers and maps carry
// identity, keyed by address and type; nothing else does. Text values
// in particular never share identity.
func identKey(v reflect.Value) (any, bool) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		if v.IsNil() {
			return nil, false
		}
		return addrKey{v.Pointer(), v.Type()}, true
	}
	return nil, false
}

type addrKey struct {
	ptr uintptr
	typ reflect.Type
}

// activeKey identifies a value for in-progress cycle detection when
// the identity comparer declines to track it. Only values that can
// participate in a cycle without carrying identity need one; in
// practice that is slices, whose backing array can reach itself.
func activeKey(v reflect.Value) (any, bool) {
	if v.Kind() == reflect.Slice && !v.IsNil() && v.Len() > 0 {
		return sliceKey{v.Pointer(), v.Len(), v.Type()}, true
	}
	return nil, false
}

type sliceKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}
