package objform

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/objform/objform/trampoline"
)

// An encoderFunc converts one value of a fixed declared type into a
// trampoline step that produces an encResult. Encoder funcs are
// compiled once per type and cached; all per-call state travels in
// the encState.
type encoderFunc[E any] func(st *encState[E], v reflect.Value) trampoline.Step

type encResult[E any] struct {
	form E
	err  error
}

// encState is the state of one top-level Serialize call.
type encState[E any] struct {
	en     *Engine[E]
	refs   encRefs[E]
	active map[any]bool
	path   []string
	errs   []error
}

func (st *encState[E]) push(seg string) { st.path = append(st.path, seg) }
func (st *encState[E]) pop()            { st.path = st.path[:len(st.path)-1] }

// fail locates err at the current path.
func (st *encState[E]) fail(err error) trampoline.Next {
	return trampoline.Done(encResult[E]{err: withPath(st.path, err)})
}

func (st *encState[E]) done(form E) trampoline.Next {
	return trampoline.Done(encResult[E]{form: form})
}

// childErr applies the propagation policy to a failure observed at a
// member or element boundary. It returns a stand-in form and true if
// the error was collected and traversal should continue.
func (st *encState[E]) childErr(err error) (E, bool) {
	var zero E
	if isFatal(err) || !st.en.opts.collectErrors {
		return zero, false
	}
	st.errs = append(st.errs, err)
	return st.en.format.Null(), true
}

func (st *encState[E]) identityKey(v reflect.Value) (any, bool) {
	if fn := st.en.opts.identity; fn != nil {
		if !v.CanInterface() {
			return nil, false
		}
		return fn(v.Interface())
	}
	return identKey(v)
}

// oneShot adapts an immediate outcome to a step.
func oneShot(n trampoline.Next) trampoline.Step {
	return func(any) trampoline.Next { return n }
}

// encoderFor returns the compiled encoder for t. Recursive types
// resolve through the cache's indirection hook.
func (en *Engine[E]) encoderFor(t reflect.Type) encoderFunc[E] {
	return en.encoders.Get(t,
		func() encoderFunc[E] { return en.buildEncoder(t) },
		func(resolve func() encoderFunc[E]) encoderFunc[E] {
			return func(st *encState[E], v reflect.Value) trampoline.Step {
				return resolve()(st, v)
			}
		})
}

func (en *Engine[E]) buildEncoder(t reflect.Type) encoderFunc[E] {
	var enc encoderFunc[E]
	if sub := en.subs[t]; sub != nil {
		enc = en.newSubstEncoder(sub)
	} else {
		enc = en.deriveEncoder(t)
	}
	enc = en.withIdentity(t, enc)
	return en.withEncodeHooks(t, enc)
}

func (en *Engine[E]) deriveEncoder(t reflect.Type) encoderFunc[E] {
	if t == en.elem {
		// Values that already are the serialized-form type embed
		// verbatim.
		return func(st *encState[E], v reflect.Value) trampoline.Step {
			return oneShot(st.done(v.Interface().(E)))
		}
	}
	if t == timeType {
		return en.newRawScalarEncoder()
	}

	switch t.Kind() {
	case reflect.Interface:
		return en.newInterfaceEncoder(t)
	case reflect.Pointer:
		return en.newPtrEncoder(t)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return en.newScalarEncoder(t)
	}

	switch categoryOf(t) {
	case CategoryArray:
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return en.newBytesEncoder()
		}
		return en.newListEncoder(t)
	case CategorySimpleKeyedMap:
		return en.newMapEncoder(t)
	case CategorySequence:
		if t.Kind() == reflect.Map {
			return en.newPairSeqEncoder(t)
		}
		return en.newSequenceEncoder(t)
	case CategoryTuple:
		return en.newTupleEncoder(t)
	case CategoryRecord:
		if t.Kind() == reflect.Struct {
			return en.newRecordEncoder(t)
		}
	}
	return en.newErrEncoder(typeErr(t, "no serialized mapping for kind %s", t.Kind()))
}

func (en *Engine[E]) newErrEncoder(err error) encoderFunc[E] {
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		return oneShot(st.fail(err))
	}
}

// withIdentity adds shared-object detection around inner for types
// that can carry identity, and in-progress cycle detection for those
// that cannot but can still close a cycle (slices).
func (en *Engine[E]) withIdentity(t reflect.Type, inner encoderFunc[E]) encoderFunc[E] {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
	default:
		// Other kinds only participate when a custom comparer is set.
		if en.opts.identity == nil || scalarKinds.Has(t.Kind()) {
			return inner
		}
	}

	return func(st *encState[E], v reflect.Value) trampoline.Step {
		key, tracked := st.identityKey(v)
		if !tracked {
			ak, can := activeKey(v)
			if !can {
				return inner(st, v)
			}
			if st.active[ak] {
				return oneShot(st.fail(typeErr(v.Type(), "cycle through a value with no identity")))
			}
			if st.active == nil {
				st.active = make(map[any]bool)
			}
			st.active[ak] = true
			started := false
			return func(prev any) trampoline.Next {
				if !started {
					started = true
					return trampoline.Call(inner(st, v))
				}
				delete(st.active, ak)
				return trampoline.Done(prev.(encResult[E]))
			}
		}

		if e := st.refs.lookup(key); e != nil {
			if e.done && !en.format.Referable(e.form) {
				// The form cannot carry a mark; serialize afresh and
				// lose the sharing.
				return inner(st, v)
			}
			id := st.refs.assignID(e)
			if e.done {
				en.format.MarkID(e.form, id)
			}
			return oneShot(st.done(en.format.Ref(id)))
		}

		e := st.refs.add(key)
		started := false
		return func(prev any) trampoline.Next {
			if !started {
				started = true
				return trampoline.Call(inner(st, v))
			}
			res := prev.(encResult[E])
			if res.err == nil {
				e.form = res.form
				e.done = true
				if e.id != 0 {
					// Some earlier visit needed a back-reference to
					// this value, discovered retroactively.
					if !en.format.Referable(res.form) {
						return st.fail(typeErr(v.Type(), "shared value produced a form the format cannot mark referable"))
					}
					en.format.MarkID(res.form, e.id)
				}
			}
			return trampoline.Done(res)
		}
	}
}

func (en *Engine[E]) newSubstEncoder(sub *substitution) encoderFunc[E] {
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		w, err := sub.toWire(v)
		if err != nil {
			return oneShot(st.fail(err))
		}
		// Identity tracking operates again on the substitute, through
		// the wire type's own pipeline.
		return en.encoderFor(sub.wire)(st, w)
	}
}

func (en *Engine[E]) withEncodeHooks(t reflect.Type, inner encoderFunc[E]) encoderFunc[E] {
	reg, hasReg := en.hooks[t]
	before := encHookCaller[BeforeSerializer](t, func(h BeforeSerializer, _ any) error { return h.BeforeSerialize() })
	after := encHookCaller[AfterSerializer](t, func(h AfterSerializer, form any) error { return h.AfterSerialize(form) })
	if !hasReg && before == nil && after == nil {
		return inner
	}

	return func(st *encState[E], v reflect.Value) trampoline.Step {
		started := false
		return func(prev any) trampoline.Next {
			if !started {
				started = true
				if hasReg && reg.BeforeSerialize != nil {
					if err := reg.BeforeSerialize(v.Interface()); err != nil {
						return st.fail(err)
					}
				}
				if before != nil {
					if err := before(v, nil); err != nil {
						return st.fail(err)
					}
				}
				return trampoline.Call(inner(st, v))
			}
			res := prev.(encResult[E])
			if res.err != nil {
				return trampoline.Done(res)
			}
			if after != nil {
				if err := after(v, res.form); err != nil {
					return st.fail(err)
				}
			}
			if hasReg && reg.AfterSerialize != nil {
				if err := reg.AfterSerialize(v.Interface(), res.form); err != nil {
					return st.fail(err)
				}
			}
			return trampoline.Done(res)
		}
	}
}

// encHookCaller compiles an invoker for a value-implemented hook
// interface, or nil if t does not implement it. Pointer-receiver
// implementations require an addressable value.
func encHookCaller[H any](t reflect.Type, call func(h H, form any) error) func(v reflect.Value, form any) error {
	ht := reflect.TypeFor[H]()
	if t.Implements(ht) {
		return func(v reflect.Value, form any) error {
			return call(v.Interface().(H), form)
		}
	}
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(ht) {
		return func(v reflect.Value, form any) error {
			if !v.CanAddr() {
				return typeErr(t, "hook implemented on pointer receiver, and cannot take the address of given value")
			}
			return call(v.Addr().Interface().(H), form)
		}
	}
	return nil
}

func (en *Engine[E]) newInterfaceEncoder(t reflect.Type) encoderFunc[E] {
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		if v.IsNil() {
			return oneShot(st.done(en.format.Null()))
		}
		inner := v.Elem()
		it := inner.Type()
		tag, registered := en.tags[it]
		if !registered && !isScalarType(it) {
			return oneShot(st.fail(typeErr(it, "type is not registered for polymorphic encoding")))
		}
		enc := en.encoderFor(it)
		started := false
		return func(prev any) trampoline.Next {
			if !started {
				started = true
				return trampoline.Call(enc(st, inner))
			}
			res := prev.(encResult[E])
			if res.err != nil || !registered {
				return trampoline.Done(res)
			}
			// Back-references and nulls carry no tag; the reference
			// target was tagged at its defining occurrence.
			if _, isRef := en.format.RefID(res.form); !isRef && !en.format.IsNull(res.form) {
				en.format.SetTag(res.form, tag.name, tag.qualified)
			}
			return trampoline.Done(res)
		}
	}
}

func (en *Engine[E]) newPtrEncoder(t reflect.Type) encoderFunc[E] {
	elemEnc := en.encoderFor(t.Elem())
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		if v.IsNil() {
			return oneShot(st.done(en.format.Null()))
		}
		return elemEnc(st, v.Elem())
	}
}

func (en *Engine[E]) newRawScalarEncoder() encoderFunc[E] {
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		f, err := en.format.Scalar(v.Interface())
		if err != nil {
			return oneShot(st.fail(err))
		}
		return oneShot(st.done(f))
	}
}

func (en *Engine[E]) newScalarEncoder(t reflect.Type) encoderFunc[E] {
	prim := kindToType[t.Kind()]
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		val := v
		if t != prim {
			val = v.Convert(prim)
		}
		f, err := en.format.Scalar(val.Interface())
		if err != nil {
			return oneShot(st.fail(err))
		}
		return oneShot(st.done(f))
	}
}

func (en *Engine[E]) newBytesEncoder() encoderFunc[E] {
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		f, err := en.format.Scalar(v.Bytes())
		if err != nil {
			return oneShot(st.fail(err))
		}
		return oneShot(st.done(f))
	}
}

func (en *Engine[E]) newListEncoder(t reflect.Type) encoderFunc[E] {
	elemEnc := en.encoderFor(t.Elem())
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		n := v.Len()
		forms := make([]E, 0, n)
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(encResult[E])
				st.pop()
				if res.err != nil {
					f, collected := st.childErr(res.err)
					if !collected {
						return trampoline.Done(res)
					}
					forms = append(forms, f)
				} else {
					forms = append(forms, res.form)
				}
			}
			if i < n {
				idx := i
				i++
				launched = true
				st.push(fmt.Sprintf("[%d]", idx))
				return trampoline.Call(elemEnc(st, v.Index(idx)))
			}
			return st.done(en.format.List(forms))
		}
	}
}

func (en *Engine[E]) newMapEncoder(t reflect.Type) encoderFunc[E] {
	keyPrim := kindToType[t.Key().Kind()]
	valEnc := en.encoderFor(t.Elem())
	kCmp := mapKeyCmp(t.Key())
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		if v.IsNil() {
			return oneShot(st.done(en.format.Null()))
		}
		ks := v.MapKeys()
		slices.SortFunc(ks, kCmp)
		entries := make([]MapEntry[E], 0, len(ks))
		i := 0
		launched := false
		var kform E
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(encResult[E])
				st.pop()
				if res.err != nil {
					f, collected := st.childErr(res.err)
					if !collected {
						return trampoline.Done(res)
					}
					res.form = f
				}
				entries = append(entries, MapEntry[E]{Key: kform, Value: res.form})
			}
			if i < len(ks) {
				k := ks[i]
				i++
				launched = true
				kf, err := en.format.Scalar(k.Convert(keyPrim).Interface())
				if err != nil {
					return st.fail(err)
				}
				kform = kf
				st.push(fmt.Sprintf("[%v]", k.Interface()))
				return trampoline.Call(valEnc(st, v.MapIndex(k)))
			}
			return st.done(en.format.Map(entries))
		}
	}
}

// newPairSeqEncoder encodes a map whose key type has no primitive
// encoding as a sequence of two-element key/value tuples.
func (en *Engine[E]) newPairSeqEncoder(t reflect.Type) encoderFunc[E] {
	keyEnc := en.encoderFor(t.Key())
	valEnc := en.encoderFor(t.Elem())
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		if v.IsNil() {
			return oneShot(st.done(en.format.Null()))
		}
		keys := v.MapKeys()
		pairs := make([]E, 0, len(keys))
		var kform E
		i := 0
		phase := 0 // 0: start next key, 1: awaiting key, 2: awaiting value
		return func(prev any) trampoline.Next {
			switch phase {
			case 1:
				res := prev.(encResult[E])
				st.pop()
				if res.err != nil {
					return trampoline.Done(res)
				}
				kform = res.form
				phase = 2
				st.push(fmt.Sprintf("[%d]", i-1))
				return trampoline.Call(valEnc(st, v.MapIndex(keys[i-1])))
			case 2:
				res := prev.(encResult[E])
				st.pop()
				if res.err != nil {
					f, collected := st.childErr(res.err)
					if !collected {
						return trampoline.Done(res)
					}
					res.form = f
				}
				pairs = append(pairs, en.format.List([]E{kform, res.form}))
				phase = 0
			}
			if i < len(keys) {
				k := keys[i]
				i++
				phase = 1
				st.push(fmt.Sprintf("[%d]", i-1))
				return trampoline.Call(keyEnc(st, k))
			}
			return st.done(en.format.List(pairs))
		}
	}
}

func (en *Engine[E]) newSequenceEncoder(t reflect.Type) encoderFunc[E] {
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		seq, err := asSequence(v)
		if err != nil {
			return oneShot(st.fail(err))
		}
		var elems []any
		for e := range seq.Elements() {
			elems = append(elems, e)
		}
		if _, lifo := seq.(LIFO); lifo {
			// A LIFO view iterates newest-first; the wire carries
			// insertion order, and Append's push semantics restore the
			// view on read.
			slices.Reverse(elems)
		}
		et := anyType
		if tt, ok := seq.(ElemTyped); ok && tt.ElemType() != nil {
			et = tt.ElemType()
		}
		elemEnc := en.encoderFor(et)

		forms := make([]E, 0, len(elems))
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(encResult[E])
				st.pop()
				if res.err != nil {
					f, collected := st.childErr(res.err)
					if !collected {
						return trampoline.Done(res)
					}
					res.form = f
				}
				forms = append(forms, res.form)
			}
			if i < len(elems) {
				ev := reflect.New(et).Elem()
				if elems[i] != nil {
					ev.Set(reflect.ValueOf(elems[i]))
				}
				st.push(fmt.Sprintf("[%d]", i))
				i++
				launched = true
				return trampoline.Call(elemEnc(st, ev))
			}
			return st.done(en.format.List(forms))
		}
	}
}

func (en *Engine[E]) newTupleEncoder(t reflect.Type) encoderFunc[E] {
	return func(st *encState[E], v reflect.Value) trampoline.Step {
		tup, err := asTuple(v)
		if err != nil {
			return oneShot(st.fail(err))
		}
		n := tup.Arity()
		forms := make([]E, 0, n)
		i := 0
		launched := false
		return func(prev any) trampoline.Next {
			if launched {
				res := prev.(encResult[E])
				st.pop()
				if res.err != nil {
					return trampoline.Done(res)
				}
				forms = append(forms, res.form)
			}
			if i < n {
				et := tup.TypeAt(i)
				ev := reflect.New(et).Elem()
				if el := tup.At(i); el != nil {
					ev.Set(reflect.ValueOf(el))
				}
				st.push(fmt.Sprintf("[%d]", i))
				i++
				launched = true
				return trampoline.Call(en.encoderFor(et)(st, ev))
			}
			return st.done(en.format.List(forms))
		}
	}
}

type fieldEnc[E any] struct {
	m   *member
	enc encoderFunc[E]
}

func (en *Engine[E]) newRecordEncoder(t reflect.Type) encoderFunc[E] {
	s, err := getSchema(t)
	if err != nil {
		return en.newErrEncoder(typeErr(t, "getting schema: %v", err))
	}
	fields := make([]fieldEnc[E], 0, len(s.Members))
	for _, m := range s.Members {
		fields = append(fields, fieldEnc[E]{m, en.memberEncoder(m)})
	}

	return func(st *encState[E], v reflect.Value) trampoline.Step {
		members := make([]Member[E], 0, len(fields))
		i := 0
		last := -1
		return func(prev any) trampoline.Next {
			if last >= 0 {
				res := prev.(encResult[E])
				st.pop()
				if res.err != nil {
					f, collected := st.childErr(res.err)
					if !collected {
						return trampoline.Done(res)
					}
					res.form = f
				}
				m := fields[last].m
				members = append(members, Member[E]{Name: m.Name, Owner: m.Owner, Value: res.form})
				last = -1
			}
			for i < len(fields) {
				f := fields[i]
				i++
				fv := f.m.GetWithZero(v)
				if f.m.skip(fv) {
					continue
				}
				if f.m.NotNull && isNilValue(fv) {
					st.push(f.m.Name)
					err := withPath(st.path, errors.New("member declared notnull is null"))
					st.pop()
					nf, collected := st.childErr(err)
					if !collected {
						return trampoline.Done(encResult[E]{err: err})
					}
					members = append(members, Member[E]{Name: f.m.Name, Owner: f.m.Owner, Value: nf})
					continue
				}
				last = i - 1
				st.push(f.m.Name)
				return trampoline.Call(f.enc(st, fv))
			}
			return st.done(en.format.Record(members))
		}
	}
}

func (en *Engine[E]) memberEncoder(m *member) encoderFunc[E] {
	if m.Conv != "" {
		sub := en.namedSubs[m.Conv]
		switch {
		case sub == nil:
			return en.newErrEncoder(typeErr(m.Type, "no substitution registered under %q", m.Conv))
		case sub.truth != m.Type:
			return en.newErrEncoder(typeErr(m.Type, "substitution %q converts %s, not %s", m.Conv, sub.truth, m.Type))
		}
		return en.newSubstEncoder(sub)
	}
	return en.encoderFor(m.Type)
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// asSequence views v through the Sequence contract, taking the
// address when the contract is implemented on the pointer and copying
// as a last resort (serialization only reads).
func asSequence(v reflect.Value) (Sequence, error) {
	t := v.Type()
	if t.Implements(sequenceType) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, typeErr(t, "nil sequence")
		}
		return v.Interface().(Sequence), nil
	}
	if v.CanAddr() {
		return v.Addr().Interface().(Sequence), nil
	}
	nv := reflect.New(t)
	nv.Elem().Set(v)
	return nv.Interface().(Sequence), nil
}

// asTuple is asSequence's counterpart for the Tuple contract.
func asTuple(v reflect.Value) (Tuple, error) {
	t := v.Type()
	if t.Implements(tupleType) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, typeErr(t, "nil tuple")
		}
		return v.Interface().(Tuple), nil
	}
	if v.CanAddr() {
		return v.Addr().Interface().(Tuple), nil
	}
	nv := reflect.New(t)
	nv.Elem().Set(v)
	return nv.Interface().(Tuple), nil
}

// mapKeyCmp returns a comparison function for the given map key type,
// so maps serialize in a stable order.
func mapKeyCmp(t reflect.Type) func(a, b reflect.Value) int {
	switch {
	case t.Kind() == reflect.Bool:
		return func(a, b reflect.Value) int {
			if a.Bool() == b.Bool() {
				return 0
			}
			if !a.Bool() {
				return -1
			}
			return 1
		}
	case intKinds.Has(t.Kind()):
		return func(a, b reflect.Value) int {
			return cmp.Compare(a.Int(), b.Int())
		}
	case uintKinds.Has(t.Kind()):
		return func(a, b reflect.Value) int {
			return cmp.Compare(a.Uint(), b.Uint())
		}
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		return func(a, b reflect.Value) int {
			return cmp.Compare(a.Float(), b.Float())
		}
	case t.Kind() == reflect.String:
		return func(a, b reflect.Value) int {
			return cmp.Compare(a.String(), b.String())
		}
	default:
		panic("invalid map key type")
	}
}
