package objform

import (
	"fmt"
	"reflect"

	"github.com/creachadair/mds/mapset"
)

// enumInfo is the declared legal set of one enumerated type. Plain
// enums carry the set of legal values; flag sets carry the union mask
// of all legal bits.
type enumInfo struct {
	flags bool
	legal mapset.Set[uint64]
	mask  uint64
}

// RegisterEnum declares the legal values of the integer type T. When
// enforcement is on, either engine-wide via [EnforceEnums] or per
// member via the enum directive, a deserialized T outside the declared
// set is discarded and the target keeps its current value.
func RegisterEnum[E any, T comparable](en *Engine[E], values ...T) {
	en.enums[reflect.TypeFor[T]()] = buildEnum(false, values)
}

// RegisterFlags declares the legal bits of the integer flag type T.
// Under enforcement a deserialized T is legal when it is any
// combination of the declared bits.
func RegisterFlags[E any, T comparable](en *Engine[E], values ...T) {
	en.enums[reflect.TypeFor[T]()] = buildEnum(true, values)
}

func buildEnum[T comparable](flags bool, values []T) *enumInfo {
	info := &enumInfo{flags: flags, legal: mapset.New[uint64]()}
	for _, v := range values {
		bits := enumBits(reflect.ValueOf(v))
		info.legal.Add(bits)
		info.mask |= bits
	}
	return info
}

func enumBits(v reflect.Value) uint64 {
	switch {
	case intKinds.Has(v.Kind()):
		return uint64(v.Int())
	case uintKinds.Has(v.Kind()):
		return v.Uint()
	}
	panic(fmt.Sprintf("type %s is not an integer enum type", v.Type()))
}

// legalEnum reports whether v is a legal value of the enumerated type
// t. Types with no registered enum info accept everything.
func (en *Engine[E]) legalEnum(t reflect.Type, v reflect.Value) bool {
	info := en.enums[t]
	if info == nil {
		return true
	}
	bits := enumBits(v)
	if info.flags {
		return bits&^info.mask == 0
	}
	return info.legal.Has(bits)
}
