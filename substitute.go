package objform

import (
	"errors"
	"reflect"
)

// ErrValueRejected reports that a reverse substitution declined the
// serialized value. It is a soft failure: the target keeps its current
// value and deserialization of the rest of the graph continues.
var ErrValueRejected = errors.New("value rejected")

// substitution is one registered bidirectional conversion between a
// stored type and its wire representation.
type substitution struct {
	truth    reflect.Type
	wire     reflect.Type
	toWire   func(reflect.Value) (reflect.Value, error)
	fromWire func(reflect.Value) (reflect.Value, error)
}

// RegisterSubstitution arranges for values of type T to serialize as
// values of type W. The to function converts on the way out, from on
// the way in. A from that returns an error wrapping [ErrValueRejected]
// keeps the target's current value instead of failing the call.
//
// The substitution applies wherever a T appears; use
// [RegisterNamedSubstitution] with the conv= member directive to scope
// a conversion to particular members.
func RegisterSubstitution[E, T, W any](en *Engine[E], to func(T) (W, error), from func(W) (T, error)) {
	en.subs[reflect.TypeFor[T]()] = newSubstitution(to, from)
}

// RegisterNamedSubstitution registers a conversion under a name for
// use with the conv= member directive. It does not apply to any member
// that does not name it.
func RegisterNamedSubstitution[E, T, W any](en *Engine[E], name string, to func(T) (W, error), from func(W) (T, error)) {
	if name == "" {
		panic("objform: empty substitution name")
	}
	en.namedSubs[name] = newSubstitution(to, from)
}

func newSubstitution[T, W any](to func(T) (W, error), from func(W) (T, error)) *substitution {
	return &substitution{
		truth: reflect.TypeFor[T](),
		wire:  reflect.TypeFor[W](),
		toWire: func(v reflect.Value) (reflect.Value, error) {
			w, err := to(v.Interface().(T))
			if err != nil {
				return reflect.Value{}, err
			}
			// Going through a pointer keeps the static wire type even
			// when W is an interface holding nil.
			return reflect.ValueOf(&w).Elem(), nil
		},
		fromWire: func(v reflect.Value) (reflect.Value, error) {
			t, err := from(v.Interface().(W))
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(&t).Elem(), nil
		},
	}
}
