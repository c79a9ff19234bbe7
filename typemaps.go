package objform

import (
	"reflect"
	"time"

	"github.com/creachadair/mds/mapset"
)

var (
	// scalarKinds is the set of reflect.Kinds the engine encodes as
	// primitive scalars.
	scalarKinds = mapset.New(
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String,
	)

	// keyKinds is the set of reflect.Kinds usable as a simple map key.
	// Only these have an unambiguous primitive encoding; maps with
	// other key types degrade to a sequence of pairs.
	keyKinds = mapset.New(
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String,
	)

	// intKinds and uintKinds classify integer kinds for enum
	// registration and scalar conversion.
	intKinds = mapset.New(
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
	)
	uintKinds = mapset.New(
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
	)

	// kindToType maps scalar kinds to their unnamed Go types, used to
	// strip named types down to their underlying primitive before
	// handing them to a Format.
	kindToType = map[reflect.Kind]reflect.Type{
		reflect.Bool:    reflect.TypeFor[bool](),
		reflect.Int:     reflect.TypeFor[int](),
		reflect.Int8:    reflect.TypeFor[int8](),
		reflect.Int16:   reflect.TypeFor[int16](),
		reflect.Int32:   reflect.TypeFor[int32](),
		reflect.Int64:   reflect.TypeFor[int64](),
		reflect.Uint:    reflect.TypeFor[uint](),
		reflect.Uint8:   reflect.TypeFor[uint8](),
		reflect.Uint16:  reflect.TypeFor[uint16](),
		reflect.Uint32:  reflect.TypeFor[uint32](),
		reflect.Uint64:  reflect.TypeFor[uint64](),
		reflect.Float32: reflect.TypeFor[float32](),
		reflect.Float64: reflect.TypeFor[float64](),
		reflect.String:  reflect.TypeFor[string](),
	}

	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
	anyType   = reflect.TypeFor[any]()
)

// isScalarType reports whether t is encoded as a primitive scalar:
// a basic kind, a byte slice, or a time.
func isScalarType(t reflect.Type) bool {
	if t == timeType || t == bytesType {
		return true
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return true
	}
	return scalarKinds.Has(t.Kind())
}
