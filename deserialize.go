package objform

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/objform/objform/trampoline"
)

// A decoderFunc populates one value of a fixed declared type from a
// form, as a trampoline step producing a decResult.
type decoderFunc[E any] func(st *decState[E], form E, v reflect.Value) trampoline.Step

type decResult struct {
	err error
}

// decState is the state of one top-level Deserialize call.
type decState[E any] struct {
	en   *Engine[E]
	refs decRefs
	path []string
	errs []error
}

func (st *decState[E]) push(seg string) { st.path = append(st.path, seg) }
func (st *decState[E]) pop()            { st.path = st.path[:len(st.path)-1] }

func (st *decState[E]) fail(err error) trampoline.Next {
	return trampoline.Done(decResult{err: withPath(st.path, err)})
}

var decOK = trampoline.Done(decResult{})

// childErr applies the propagation policy to a failure observed at a
// member or element boundary. It reports whether the error was
// collected and traversal should continue, leaving the failed subtree
// at its default.
func (st *decState[E]) childErr(err error) bool {
	if isFatal(err) || !st.en.opts.collectErrors {
		return false
	}
	st.errs = append(st.errs, err)
	return true
}

// settable enforces the unsettable-target policy: a target the engine
// cannot store into is an error unless [SkipUnsettable] is set, in
// which case it is quietly left alone.
func (st *decState[E]) settable(v reflect.Value) (bool, trampoline.Next) {
	if v.CanSet() {
		return true, trampoline.Next{}
	}
	if st.en.opts.skipUnsettable {
		return false, decOK
	}
	return false, st.fail(typeErr(v.Type(), "target value is not settable"))
}

// decoderFor returns the compiled decoder for t.
func (en *Engine[E]) decoderFor(t reflect.Type) decoderFunc[E] {
	return en.decoders.Get(t,
		func() decoderFunc[E] { return en.buildDecoder(t) },
		func(resolve func() decoderFunc[E]) decoderFunc[E] {
			return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
				return resolve()(st, form, v)
			}
		})
}

func (en *Engine[E]) buildDecoder(t reflect.Type) decoderFunc[E] {
	if t == en.elem {
		// Targets of the serialized-form type take the form verbatim,
		// nulls and references included.
		return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
			return oneShot(func() trampoline.Next {
				if ok, n := st.settable(v); !ok {
					return n
				}
				v.Set(reflect.ValueOf(&form).Elem())
				return decOK
			}())
		}
	}
	var dec decoderFunc[E]
	if sub := en.subs[t]; sub != nil {
		dec = en.newSubstDecoder(sub)
	} else {
		dec = en.deriveDecoder(t)
	}
	dec = en.withDecodeHooks(t, dec)
	return en.withFormPrelude(dec)
}

// withFormPrelude resolves the two universal form shapes before the
// type-specific decoder runs: the null marker zeroes the target, and a
// back-reference resolves through the reference table.
func (en *Engine[E]) withFormPrelude(inner decoderFunc[E]) decoderFunc[E] {
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		if en.format.IsNull(form) {
			return oneShot(func() trampoline.Next {
				if ok, n := st.settable(v); !ok {
					return n
				}
				v.SetZero()
				return decOK
			}())
		}
		if id, ok := en.format.RefID(form); ok {
			return oneShot(func() trampoline.Next {
				e := st.refs.lookup(id)
				if e == nil {
					return st.fail(fmt.Errorf("%w: id %d", ErrUnknownRef, id))
				}
				rv, err := e.get()
				if err != nil {
					return st.fail(err)
				}
				if ok, n := st.settable(v); !ok {
					return n
				}
				if !rv.Type().AssignableTo(v.Type()) {
					return st.fail(fmt.Errorf("reference id %d resolves to %s, not assignable to %s", id, rv.Type(), v.Type()))
				}
				v.Set(rv)
				return decOK
			}())
		}
		return inner(st, form, v)
	}
}

func (en *Engine[E]) withDecodeHooks(t reflect.Type, inner decoderFunc[E]) decoderFunc[E] {
	reg, hasReg := en.hooks[t]
	before := encHookCaller[BeforeDeserializer](t, func(h BeforeDeserializer, form any) error { return h.BeforeDeserialize(form) })
	after := encHookCaller[AfterDeserializer](t, func(h AfterDeserializer, form any) error { return h.AfterDeserialize(form) })
	if !hasReg && before == nil && after == nil {
		return inner
	}

	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		started := false
		return func(prev any) trampoline.Next {
			if !started {
				started = true
				if hasReg && reg.BeforeDeserialize != nil {
					if err := reg.BeforeDeserialize(v.Interface(), form); err != nil {
						return st.fail(err)
					}
				}
				if before != nil {
					if err := before(v, form); err != nil {
						return st.fail(err)
					}
				}
				return trampoline.Call(inner(st, form, v))
			}
			res := prev.(decResult)
			if res.err != nil {
				return trampoline.Done(res)
			}
			if after != nil {
				if err := after(v, form); err != nil {
					return st.fail(err)
				}
			}
			if hasReg && reg.AfterDeserialize != nil {
				if err := reg.AfterDeserialize(v.Interface(), form); err != nil {
					return st.fail(err)
				}
			}
			return trampoline.Done(res)
		}
	}
}

func (en *Engine[E]) deriveDecoder(t reflect.Type) decoderFunc[E] {
	if t == timeType {
		return en.newScalarDecoder(t, false)
	}

	switch t.Kind() {
	case reflect.Interface:
		return en.newInterfaceDecoder(t)
	case reflect.Pointer:
		return en.newPtrDecoder(t)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return en.newScalarDecoder(t, en.opts.enforceEnums)
	}

	switch categoryOf(t) {
	case CategoryArray:
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return en.newScalarDecoder(t, false)
		}
		if t.Kind() == reflect.Array {
			return en.newArrayDecoder(t)
		}
		return en.newSliceDecoder(t)
	case CategorySimpleKeyedMap:
		return en.newMapDecoder(t)
	case CategorySequence:
		if t.Kind() == reflect.Map {
			return en.newPairSeqDecoder(t)
		}
		return en.newSequenceDecoder(t)
	case CategoryTuple:
		return en.newTupleDecoder(t)
	case CategoryRecord:
		if t.Kind() == reflect.Struct {
			return en.newRecordDecoder(t)
		}
	}
	return en.newErrDecoder(typeErr(t, "no serialized mapping for kind %s", t.Kind()))
}

func (en *Engine[E]) newErrDecoder(err error) decoderFunc[E] {
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		return oneShot(st.fail(err))
	}
}

func (en *Engine[E]) newSubstDecoder(sub *substitution) decoderFunc[E] {
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		started := false
		wv := reflect.New(sub.wire).Elem()
		return func(prev any) trampoline.Next {
			if !started {
				started = true
				return trampoline.Call(en.decoderFor(sub.wire)(st, form, wv))
			}
			res := prev.(decResult)
			if res.err != nil {
				return trampoline.Done(res)
			}
			tv, err := sub.fromWire(wv)
			if err != nil {
				if errors.Is(err, ErrValueRejected) {
					// Soft failure: the target keeps what it has.
					return decOK
				}
				return st.fail(err)
			}
			if ok, n := st.settable(v); !ok {
				return n
			}
			v.Set(tv)
			// A mark on the form names the original object's identity;
			// later back-references must see the converted value, so
			// re-point the id past whatever the wire decoder registered.
			if id, ok := en.format.MarkedID(form); ok {
				st.refs.register(id, func() (reflect.Value, error) { return tv, nil })
			}
			return decOK
		}
	}
}

func (en *Engine[E]) newInterfaceDecoder(t reflect.Type) decoderFunc[E] {
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		if tag, _, ok := en.format.Tag(form); ok {
			typ, found := en.names[tag]
			if !found {
				return oneShot(st.fail(fmt.Errorf("%w: %q", ErrUnknownTypeTag, tag)))
			}
			if !typ.Implements(t) {
				return oneShot(st.fail(typeErr(typ, "does not implement target interface %s", t)))
			}
			nv := reflect.New(typ).Elem()
			dec := en.decoderFor(typ)
			started := false
			return func(prev any) trampoline.Next {
				if !started {
					started = true
					return trampoline.Call(dec(st, form, nv))
				}
				res := prev.(decResult)
				if res.err != nil {
					return trampoline.Done(res)
				}
				if ok, n := st.settable(v); !ok {
					return n
				}
				v.Set(nv)
				return decOK
			}
		}
		// Untagged forms can only be scalars; their value speaks for
		// itself.
		if raw, ok := en.format.ScalarValue(form); ok {
			return oneShot(func() trampoline.Next {
				if ok, n := st.settable(v); !ok {
					return n
				}
				rv := reflect.ValueOf(raw)
				if !rv.IsValid() || !rv.Type().AssignableTo(t) {
					return st.fail(fmt.Errorf("%w: scalar %T is not assignable to %s", ErrFormMismatch, raw, t))
				}
				v.Set(rv)
				return decOK
			}())
		}
		return oneShot(st.fail(fmt.Errorf("%w: untagged composite form at dynamically typed target", ErrFormMismatch)))
	}
}

func (en *Engine[E]) newPtrDecoder(t reflect.Type) decoderFunc[E] {
	elemDec := en.decoderFor(t.Elem())
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		if v.IsNil() {
			if ok, n := st.settable(v); !ok {
				return oneShot(n)
			}
			v.Set(reflect.New(t.Elem()))
		}
		if id, ok := en.format.MarkedID(form); ok {
			// Register before populating, so cycles through this
			// object resolve to the instance under construction.
			p := v.Interface()
			st.refs.register(id, func() (reflect.Value, error) { return reflect.ValueOf(p), nil })
		}
		return elemDec(st, form, v.Elem())
	}
}

func (en *Engine[E]) newScalarDecoder(t reflect.Type, enforce bool) decoderFunc[E] {
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		return oneShot(func() trampoline.Next {
			raw, ok := en.format.ScalarValue(form)
			if !ok {
				return st.fail(fmt.Errorf("%w: expected a scalar for %s", ErrFormMismatch, t))
			}
			cv, err := convertScalar(raw, t)
			if err != nil {
				return st.fail(err)
			}
			if enforce && !en.legalEnum(t, cv) {
				// Illegal enum values are discarded; the target keeps
				// its current value.
				return decOK
			}
			if ok, n := st.settable(v); !ok {
				return n
			}
			v.Set(cv)
			return decOK
		}())
	}
}

func (en *Engine[E]) newSliceDecoder(t reflect.Type) decoderFunc[E] {
	elemDec := en.decoderFor(t.Elem())
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		felems, ok := en.format.Elems(form)
		if !ok {
			return oneShot(st.fail(fmt.Errorf("%w: expected a list for %s", ErrFormMismatch, t)))
		}
		if ok, n := st.settable(v); !ok {
			return oneShot(n)
		}
		n := len(felems)
		// All elements decode into temporaries before any insertion,
		// so a failed element never leaves the slice half-built.
		elems := make([]reflect.Value, n)
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(decResult)
				st.pop()
				if res.err != nil && !st.childErr(res.err) {
					return trampoline.Done(res)
				}
			}
			if i < n {
				idx := i
				i++
				launched = true
				elems[idx] = reflect.New(t.Elem()).Elem()
				st.push(fmt.Sprintf("[%d]", idx))
				return trampoline.Call(elemDec(st, felems[idx], elems[idx]))
			}
			ns := reflect.MakeSlice(t, n, n)
			for j, e := range elems {
				ns.Index(j).Set(e)
			}
			v.Set(ns)
			return decOK
		}
	}
}

func (en *Engine[E]) newArrayDecoder(t reflect.Type) decoderFunc[E] {
	elemDec := en.decoderFor(t.Elem())
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		felems, ok := en.format.Elems(form)
		if !ok {
			return oneShot(st.fail(fmt.Errorf("%w: expected a list for %s", ErrFormMismatch, t)))
		}
		if len(felems) != t.Len() {
			return oneShot(st.fail(fmt.Errorf("%w: %d elements for array of %d", ErrArityMismatch, len(felems), t.Len())))
		}
		if ok, n := st.settable(v); !ok {
			return oneShot(n)
		}
		elems := make([]reflect.Value, t.Len())
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(decResult)
				st.pop()
				if res.err != nil && !st.childErr(res.err) {
					return trampoline.Done(res)
				}
			}
			if i < len(felems) {
				idx := i
				i++
				launched = true
				elems[idx] = reflect.New(t.Elem()).Elem()
				st.push(fmt.Sprintf("[%d]", idx))
				return trampoline.Call(elemDec(st, felems[idx], elems[idx]))
			}
			for j, e := range elems {
				v.Index(j).Set(e)
			}
			return decOK
		}
	}
}

func (en *Engine[E]) newMapDecoder(t reflect.Type) decoderFunc[E] {
	valDec := en.decoderFor(t.Elem())
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		entries, ok := en.format.Entries(form)
		if !ok {
			return oneShot(st.fail(fmt.Errorf("%w: expected a map for %s", ErrFormMismatch, t)))
		}
		if v.IsNil() {
			if ok, n := st.settable(v); !ok {
				return oneShot(n)
			}
			v.Set(reflect.MakeMapWithSize(t, len(entries)))
		} else {
			v.Clear()
		}
		if id, ok := en.format.MarkedID(form); ok {
			m := v.Interface()
			st.refs.register(id, func() (reflect.Value, error) { return reflect.ValueOf(m), nil })
		}

		keys := make([]reflect.Value, 0, len(entries))
		vals := make([]reflect.Value, 0, len(entries))
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(decResult)
				st.pop()
				if res.err != nil {
					if !st.childErr(res.err) {
						return trampoline.Done(res)
					}
					keys = keys[:len(keys)-1]
					vals = vals[:len(vals)-1]
				}
			}
			if i < len(entries) {
				e := entries[i]
				i++
				launched = true
				raw, ok := en.format.ScalarValue(e.Key)
				if !ok {
					return st.fail(fmt.Errorf("%w: map key is not a scalar", ErrFormMismatch))
				}
				kv, err := convertScalar(raw, t.Key())
				if err != nil {
					return st.fail(fmt.Errorf("map key: %w", err))
				}
				keys = append(keys, kv)
				vv := reflect.New(t.Elem()).Elem()
				vals = append(vals, vv)
				st.push(fmt.Sprintf("[%v]", kv.Interface()))
				return trampoline.Call(valDec(st, e.Value, vv))
			}
			for j := range keys {
				v.SetMapIndex(keys[j], vals[j])
			}
			return decOK
		}
	}
}

// newPairSeqDecoder reads a map with non-primitive keys back from its
// sequence-of-pairs encoding.
func (en *Engine[E]) newPairSeqDecoder(t reflect.Type) decoderFunc[E] {
	keyDec := en.decoderFor(t.Key())
	valDec := en.decoderFor(t.Elem())
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		pairs, ok := en.format.Elems(form)
		if !ok {
			return oneShot(st.fail(fmt.Errorf("%w: expected a list of pairs for %s", ErrFormMismatch, t)))
		}
		if v.IsNil() {
			if ok, n := st.settable(v); !ok {
				return oneShot(n)
			}
			v.Set(reflect.MakeMapWithSize(t, len(pairs)))
		} else {
			v.Clear()
		}
		if id, ok := en.format.MarkedID(form); ok {
			m := v.Interface()
			st.refs.register(id, func() (reflect.Value, error) { return reflect.ValueOf(m), nil })
		}

		keys := make([]reflect.Value, 0, len(pairs))
		vals := make([]reflect.Value, 0, len(pairs))
		i := 0
		phase := 0 // 0: start next pair, 1: awaiting key, 2: awaiting value
		return func(prev any) trampoline.Next {
			switch phase {
			case 1:
				res := prev.(decResult)
				st.pop()
				if res.err != nil {
					return trampoline.Done(res)
				}
				phase = 2
				pf, _ := en.format.Elems(pairs[i-1])
				st.push(fmt.Sprintf("[%d]", i-1))
				return trampoline.Call(valDec(st, pf[1], vals[len(vals)-1]))
			case 2:
				res := prev.(decResult)
				st.pop()
				phase = 0
				if res.err != nil {
					if !st.childErr(res.err) {
						return trampoline.Done(res)
					}
					keys = keys[:len(keys)-1]
					vals = vals[:len(vals)-1]
				}
			}
			if i < len(pairs) {
				pf, ok := en.format.Elems(pairs[i])
				if !ok || len(pf) != 2 {
					return st.fail(fmt.Errorf("%w: map entry is not a key/value pair", ErrFormMismatch))
				}
				i++
				phase = 1
				keys = append(keys, reflect.New(t.Key()).Elem())
				vals = append(vals, reflect.New(t.Elem()).Elem())
				st.push(fmt.Sprintf("[%d]", i-1))
				return trampoline.Call(keyDec(st, pf[0], keys[len(keys)-1]))
			}
			for j := range keys {
				v.SetMapIndex(keys[j], vals[j])
			}
			return decOK
		}
	}
}

func (en *Engine[E]) newSequenceDecoder(t reflect.Type) decoderFunc[E] {
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		felems, ok := en.format.Elems(form)
		if !ok {
			return oneShot(st.fail(fmt.Errorf("%w: expected a sequence for %s", ErrFormMismatch, t)))
		}
		seq, err := asSequenceInto(v)
		if err != nil {
			return oneShot(st.fail(err))
		}
		et := anyType
		if tt, ok := seq.(ElemTyped); ok && tt.ElemType() != nil {
			et = tt.ElemType()
		}
		elemDec := en.decoderFor(et)

		// Decode every element first; Append runs only once the whole
		// sequence is known to be good.
		elems := make([]reflect.Value, len(felems))
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(decResult)
				st.pop()
				if res.err != nil && !st.childErr(res.err) {
					return trampoline.Done(res)
				}
			}
			if i < len(felems) {
				idx := i
				i++
				launched = true
				elems[idx] = reflect.New(et).Elem()
				st.push(fmt.Sprintf("[%d]", idx))
				return trampoline.Call(elemDec(st, felems[idx], elems[idx]))
			}
			for _, e := range elems {
				if err := seq.Append(e.Interface()); err != nil {
					return st.fail(typeErr(t, "appending element: %v", err))
				}
			}
			return decOK
		}
	}
}

func (en *Engine[E]) newTupleDecoder(t reflect.Type) decoderFunc[E] {
	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		felems, ok := en.format.Elems(form)
		if !ok {
			return oneShot(st.fail(fmt.Errorf("%w: expected a tuple for %s", ErrFormMismatch, t)))
		}
		tup, err := asTupleInto(v)
		if err != nil {
			return oneShot(st.fail(err))
		}
		if len(felems) != tup.Arity() {
			return oneShot(st.fail(fmt.Errorf("%w: %d elements for tuple of arity %d", ErrArityMismatch, len(felems), tup.Arity())))
		}

		elems := make([]reflect.Value, len(felems))
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(decResult)
				st.pop()
				if res.err != nil {
					return trampoline.Done(res)
				}
			}
			if i < len(felems) {
				idx := i
				i++
				launched = true
				elems[idx] = reflect.New(tup.TypeAt(idx)).Elem()
				st.push(fmt.Sprintf("[%d]", idx))
				return trampoline.Call(en.decoderFor(tup.TypeAt(idx))(st, felems[idx], elems[idx]))
			}
			for j, e := range elems {
				if err := tup.SetAt(j, e.Interface()); err != nil {
					return st.fail(typeErr(t, "storing element %d: %v", j, err))
				}
			}
			return decOK
		}
	}
}

type fieldDec[E any] struct {
	m   *member
	dec decoderFunc[E]
}

func (en *Engine[E]) newRecordDecoder(t reflect.Type) decoderFunc[E] {
	s, err := getSchema(t)
	if err != nil {
		return en.newErrDecoder(typeErr(t, "getting schema: %v", err))
	}
	fields := make([]fieldDec[E], 0, len(s.Members))
	for _, m := range s.Members {
		fields = append(fields, fieldDec[E]{m, en.memberDecoder(m)})
	}

	return func(st *decState[E], form E, v reflect.Value) trampoline.Step {
		ms, ok := en.format.Members(form)
		if !ok {
			return oneShot(st.fail(fmt.Errorf("%w: expected a record for %s", ErrFormMismatch, t)))
		}
		// Serialized members the schema does not know are silently
		// discarded; schema members with no serialized counterpart keep
		// whatever the target already holds.
		have := make(map[*member]E, len(ms))
		for _, sm := range ms {
			if m := s.memberNamed(sm.Name, sm.Owner); m != nil {
				have[m] = sm.Value
			}
		}

		i := 0
		last := -1
		return func(prev any) trampoline.Next {
			if last >= 0 {
				res := prev.(decResult)
				st.pop()
				fv := fields[last].m.GetWithAlloc(v)
				last = -1
				if res.err != nil {
					if !st.childErr(res.err) {
						return trampoline.Done(res)
					}
					fv.SetZero()
				}
			}
			for i < len(fields) {
				f := fields[i]
				i++
				mf, ok := have[f.m]
				if !ok {
					continue
				}
				if f.m.NotNull && en.format.IsNull(mf) {
					st.push(f.m.Name)
					err := withPath(st.path, errors.New("member declared notnull is null"))
					st.pop()
					if !st.childErr(err) {
						return trampoline.Done(decResult{err: err})
					}
					continue
				}
				last = i - 1
				st.push(f.m.Name)
				return trampoline.Call(f.dec(st, mf, f.m.GetWithAlloc(v)))
			}
			return decOK
		}
	}
}

func (en *Engine[E]) memberDecoder(m *member) decoderFunc[E] {
	if m.Conv != "" {
		sub := en.namedSubs[m.Conv]
		switch {
		case sub == nil:
			return en.newErrDecoder(typeErr(m.Type, "no substitution registered under %q", m.Conv))
		case sub.truth != m.Type:
			return en.newErrDecoder(typeErr(m.Type, "substitution %q converts %s, not %s", m.Conv, sub.truth, m.Type))
		}
		return en.withFormPrelude(en.newSubstDecoder(sub))
	}
	if m.Enum && scalarKinds.Has(m.Type.Kind()) {
		return en.withFormPrelude(en.newScalarDecoder(m.Type, true))
	}
	return en.decoderFor(m.Type)
}

// asSequenceInto views the decode target v through the Sequence
// contract for in-place appends.
func asSequenceInto(v reflect.Value) (Sequence, error) {
	t := v.Type()
	if v.CanAddr() && reflect.PointerTo(t).Implements(sequenceType) {
		return v.Addr().Interface().(Sequence), nil
	}
	if t.Implements(sequenceType) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			if !v.CanSet() {
				return nil, typeErr(t, "nil sequence target")
			}
			v.Set(reflect.New(t.Elem()))
		}
		return v.Interface().(Sequence), nil
	}
	return nil, typeErr(t, "cannot append into unaddressable sequence")
}

// asTupleInto is asSequenceInto's counterpart for the Tuple contract.
func asTupleInto(v reflect.Value) (Tuple, error) {
	t := v.Type()
	if v.CanAddr() && reflect.PointerTo(t).Implements(tupleType) {
		return v.Addr().Interface().(Tuple), nil
	}
	if t.Implements(tupleType) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			if !v.CanSet() {
				return nil, typeErr(t, "nil tuple target")
			}
			v.Set(reflect.New(t.Elem()))
		}
		return v.Interface().(Tuple), nil
	}
	return nil, typeErr(t, "cannot store into unaddressable tuple")
}

// convertScalar adapts a raw scalar delivered by the format to the
// declared target type. Formats are free to widen numbers on the wire,
// so conversions within a numeric class are accepted as long as the
// value fits.
func convertScalar(raw any, t reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(t), nil
	}
	if t == timeType {
		if tm, ok := raw.(time.Time); ok {
			return reflect.ValueOf(tm), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %T is not a time", ErrFormMismatch, raw)
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		if bs, ok := raw.([]byte); ok {
			return reflect.ValueOf(bs).Convert(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %T is not a byte string", ErrFormMismatch, raw)
	}

	rv := reflect.ValueOf(raw)
	nv := reflect.New(t).Elem()
	switch {
	case t.Kind() == reflect.Bool:
		if rv.Kind() != reflect.Bool {
			break
		}
		nv.SetBool(rv.Bool())
		return nv, nil
	case t.Kind() == reflect.String:
		if rv.Kind() != reflect.String {
			break
		}
		nv.SetString(rv.String())
		return nv, nil
	case intKinds.Has(t.Kind()):
		var i int64
		switch {
		case intKinds.Has(rv.Kind()):
			i = rv.Int()
		case uintKinds.Has(rv.Kind()):
			if rv.Uint() > math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("value %d overflows %s", rv.Uint(), t)
			}
			i = int64(rv.Uint())
		default:
			return reflect.Value{}, fmt.Errorf("%w: %T is not an integer", ErrFormMismatch, raw)
		}
		if nv.OverflowInt(i) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %s", i, t)
		}
		nv.SetInt(i)
		return nv, nil
	case uintKinds.Has(t.Kind()):
		var u uint64
		switch {
		case uintKinds.Has(rv.Kind()):
			u = rv.Uint()
		case intKinds.Has(rv.Kind()):
			if rv.Int() < 0 {
				return reflect.Value{}, fmt.Errorf("value %d overflows %s", rv.Int(), t)
			}
			u = uint64(rv.Int())
		default:
			return reflect.Value{}, fmt.Errorf("%w: %T is not an integer", ErrFormMismatch, raw)
		}
		if nv.OverflowUint(u) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %s", u, t)
		}
		nv.SetUint(u)
		return nv, nil
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		var f float64
		switch {
		case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
			f = rv.Float()
		case intKinds.Has(rv.Kind()):
			f = float64(rv.Int())
		case uintKinds.Has(rv.Kind()):
			f = float64(rv.Uint())
		default:
			return reflect.Value{}, fmt.Errorf("%w: %T is not a number", ErrFormMismatch, raw)
		}
		if nv.OverflowFloat(f) {
			return reflect.Value{}, fmt.Errorf("value %v overflows %s", f, t)
		}
		nv.SetFloat(f)
		return nv, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot store %T into %s", ErrFormMismatch, raw, t)
}
