package objform_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/objform/objform"
	"github.com/objform/objform/memform"
)

func newEngine(opts ...objform.Option) *objform.Engine[*memform.Node] {
	return memform.NewEngine(opts...)
}

func roundTrip[T any](t *testing.T, en *objform.Engine[*memform.Node], v T) T {
	t.Helper()
	form, err := en.Serialize(v)
	if err != nil {
		t.Fatalf("Serialize(%+v): %v", v, err)
	}
	var got T
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize(%+v): %v", v, err)
	}
	return got
}

func mustScalar(v any) *memform.Node {
	n, err := memform.Format{}.Scalar(v)
	if err != nil {
		panic(err)
	}
	return n
}

type basics struct {
	B   bool
	I   int
	I8  int8
	I64 int64
	U16 uint16
	F   float64
	S   string
	Bs  []byte
	T   time.Time
}

type point struct{ X, Y int }

type nested struct {
	Name   string
	At     point
	Tags   []string
	Attrs  map[string]int
	Coords [2]float64
	Ptr    *point
}

func TestRoundTrip(t *testing.T) {
	when := time.Date(2024, 11, 3, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		run  func(t *testing.T, en *objform.Engine[*memform.Node])
	}{
		{"basics", func(t *testing.T, en *objform.Engine[*memform.Node]) {
			in := basics{true, -7, 100, 1 << 40, 9999, 2.5, "hi", []byte("raw"), when}
			if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
				t.Errorf("round trip (-got+want):\n%s", diff)
			}
		}},
		{"nested", func(t *testing.T, en *objform.Engine[*memform.Node]) {
			in := nested{
				Name:   "n",
				At:     point{1, 2},
				Tags:   []string{"a", "b"},
				Attrs:  map[string]int{"x": 1, "y": 2},
				Coords: [2]float64{0.5, 1.5},
				Ptr:    &point{3, 4},
			}
			if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
				t.Errorf("round trip (-got+want):\n%s", diff)
			}
		}},
		{"nilSliceBecomesEmpty", func(t *testing.T, en *objform.Engine[*memform.Node]) {
			got := roundTrip(t, en, nested{})
			if got.Tags == nil || len(got.Tags) != 0 {
				t.Errorf("Tags = %#v, want empty non-nil slice", got.Tags)
			}
		}},
		{"nilPointerStaysNil", func(t *testing.T, en *objform.Engine[*memform.Node]) {
			if got := roundTrip(t, en, nested{}); got.Ptr != nil {
				t.Errorf("Ptr = %+v, want nil", got.Ptr)
			}
		}},
		{"structKeyedMap", func(t *testing.T, en *objform.Engine[*memform.Node]) {
			in := map[point]string{{1, 2}: "a", {3, 4}: "b"}
			if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
				t.Errorf("round trip (-got+want):\n%s", diff)
			}
		}},
		{"topLevelScalar", func(t *testing.T, en *objform.Engine[*memform.Node]) {
			if got := roundTrip(t, en, 42); got != 42 {
				t.Errorf("got %d, want 42", got)
			}
		}},
		{"jagged", func(t *testing.T, en *objform.Engine[*memform.Node]) {
			in := [][]int{{1}, {2, 3}, {}}
			if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
				t.Errorf("round trip (-got+want):\n%s", diff)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) { tc.run(t, newEngine()) })
	}
}

func TestMapOrderDeterministic(t *testing.T) {
	en := newEngine()
	form, err := en.Serialize(map[string]int{"b": 2, "c": 3, "a": 1})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var keys []string
	for _, e := range form.Entries {
		keys = append(keys, e.Key.Scalar.(string))
	}
	if diff := cmp.Diff(keys, []string{"a", "b", "c"}); diff != "" {
		t.Errorf("map keys out of order (-got+want):\n%s", diff)
	}
}

func TestNullOverwrites(t *testing.T) {
	// An explicit null in the form zeroes a target the caller had
	// pre-initialized; a missing member leaves it alone.
	en := newEngine()
	form, err := en.Serialize(nested{Name: "x"})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got := nested{Ptr: &point{9, 9}, Attrs: map[string]int{"z": 1}}
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Ptr != nil {
		t.Errorf("Ptr = %+v, want nil after explicit null", got.Ptr)
	}
}

type pal struct {
	Name        string
	Left, Right *pal
}

func TestSharedPointer(t *testing.T) {
	en := newEngine()
	shared := &pal{Name: "s"}
	got := roundTrip(t, en, &pal{Name: "r", Left: shared, Right: shared})
	if got.Left == nil || got.Left != got.Right {
		t.Errorf("Left and Right are distinct after round trip")
	}
	if got.Left.Name != "s" {
		t.Errorf("shared Name = %q, want s", got.Left.Name)
	}
}

func TestPointerCycle(t *testing.T) {
	en := newEngine()
	root := &pal{Name: "r"}
	root.Left = root
	got := roundTrip(t, en, root)
	if got.Left != got {
		t.Errorf("cycle not restored: got.Left = %p, got = %p", got.Left, got)
	}
}

func TestSharedMap(t *testing.T) {
	type holder struct{ A, B map[string]int }
	en := newEngine()
	m := map[string]int{"k": 1}
	got := roundTrip(t, en, holder{A: m, B: m})
	got.A["k2"] = 2
	if got.B["k2"] != 2 {
		t.Errorf("A and B are distinct maps after round trip")
	}
}

func TestUnsharedPointersStayUnshared(t *testing.T) {
	en := newEngine()
	got := roundTrip(t, en, &pal{Name: "r", Left: &pal{Name: "x"}, Right: &pal{Name: "x"}})
	if got.Left == got.Right {
		t.Errorf("distinct pointers were merged by round trip")
	}
}

func TestInstanceReuse(t *testing.T) {
	en := newEngine()
	form, err := en.Serialize(&pal{Name: "r", Left: &pal{Name: "new"}})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	existing := &pal{Name: "old"}
	got := &pal{Left: existing}
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Left != existing {
		t.Errorf("Left was reallocated, want the existing instance populated in place")
	}
	if existing.Name != "new" {
		t.Errorf("existing.Name = %q, want new", existing.Name)
	}
}

type selfSlice []selfSlice

func TestUntrackedCycle(t *testing.T) {
	en := newEngine()
	s := make(selfSlice, 1)
	s[0] = s
	_, err := en.Serialize(s)
	var te objform.TypeError
	if !errors.As(err, &te) {
		t.Errorf("Serialize(self-referential slice) = %v, want TypeError", err)
	}
}

func TestSliceSharingNotPreserved(t *testing.T) {
	// Slices carry no identity: both occurrences serialize
	// independently, and the round trip yields distinct backing arrays.
	type holder struct{ A, B []int }
	en := newEngine()
	s := []int{1, 2}
	got := roundTrip(t, en, holder{A: s, B: s})
	got.A[0] = 99
	if got.B[0] == 99 {
		t.Errorf("A and B still share a backing array after round trip")
	}
}

type link struct {
	N    int
	Next *link
}

func TestDeepNesting(t *testing.T) {
	const depth = 30_000
	root := &link{}
	cur := root
	for i := 1; i < depth; i++ {
		cur.Next = &link{N: i}
		cur = cur.Next
	}

	en := newEngine()
	got := roundTrip(t, en, root)
	n := 0
	for c := got; c != nil; c = c.Next {
		n++
	}
	if n != depth {
		t.Errorf("chain length = %d, want %d", n, depth)
	}
}

func TestStackRoundTrip(t *testing.T) {
	en := newEngine()
	s := objform.NewStack(1, 2, 3)
	form, err := en.Serialize(s)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	// The wire carries insertion order even though the stack iterates
	// top-first.
	var wire []int
	for _, e := range form.Elems {
		wire = append(wire, e.Scalar.(int))
	}
	if diff := cmp.Diff(wire, []int{1, 2, 3}); diff != "" {
		t.Errorf("wire order (-got+want):\n%s", diff)
	}

	var got objform.Stack[int]
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	var popped []int
	for {
		v, ok := got.Pop()
		if !ok {
			break
		}
		popped = append(popped, v)
	}
	if diff := cmp.Diff(popped, []int{3, 2, 1}); diff != "" {
		t.Errorf("pop order (-got+want):\n%s", diff)
	}
}

func TestQueueRoundTrip(t *testing.T) {
	en := newEngine()
	q := objform.NewQueue("a", "b", "c")
	var got objform.Queue[string]
	form, err := en.Serialize(q)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	var popped []string
	for {
		v, ok := got.Pop()
		if !ok {
			break
		}
		popped = append(popped, v)
	}
	if diff := cmp.Diff(popped, []string{"a", "b", "c"}); diff != "" {
		t.Errorf("queue order (-got+want):\n%s", diff)
	}
}

func TestPairRoundTrip(t *testing.T) {
	en := newEngine()
	in := objform.Pair[string, int]{Key: "k", Value: 7}
	if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
		t.Errorf("round trip (-got+want):\n%s", diff)
	}
}

func TestTupleArityMismatch(t *testing.T) {
	f := memform.Format{}
	form := f.List([]*memform.Node{mustScalar("a"), mustScalar(1), mustScalar(2)})
	var got objform.Pair[string, int]
	err := newEngine().Deserialize(form, &got)
	if !errors.Is(err, objform.ErrArityMismatch) {
		t.Errorf("Deserialize = %v, want ErrArityMismatch", err)
	}
}

func TestEmbeddedNameCollision(t *testing.T) {
	type Base struct{ ID int }
	type Item struct {
		Base
		ID int
	}
	en := newEngine()
	in := Item{Base: Base{ID: 1}, ID: 2}
	form, err := en.Serialize(in)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	owners := map[string]bool{}
	for _, m := range form.Members {
		owners[m.Owner] = true
	}
	if !owners["Base"] || !owners["Item"] {
		t.Errorf("colliding members missing owner disambiguators: %v", owners)
	}
	if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
		t.Errorf("round trip (-got+want):\n%s", diff)
	}
}

func TestFormPassthrough(t *testing.T) {
	type raw struct {
		N *memform.Node
	}
	en := newEngine()
	in := raw{N: mustScalar("opaque")}
	got := roundTrip(t, en, in)
	if got.N != in.N {
		t.Errorf("embedded form was copied, want the original node carried through")
	}
}

func TestUnknownRef(t *testing.T) {
	var got *pal
	err := newEngine().Deserialize(memform.Format{}.Ref(9), &got)
	if !errors.Is(err, objform.ErrUnknownRef) {
		t.Errorf("Deserialize = %v, want ErrUnknownRef", err)
	}
}

func TestFormMismatch(t *testing.T) {
	f := memform.Format{}
	var got int
	err := newEngine().Deserialize(f.List(nil), &got)
	if !errors.Is(err, objform.ErrFormMismatch) {
		t.Errorf("Deserialize = %v, want ErrFormMismatch", err)
	}
}

func TestErrorPath(t *testing.T) {
	type person struct{ Name string }
	type group struct{ Friends []person }
	f := memform.Format{}
	form := f.Record([]objform.Member[*memform.Node]{{
		Name: "Friends",
		Value: f.List([]*memform.Node{
			f.Record([]objform.Member[*memform.Node]{{Name: "Name", Value: mustScalar("ok")}}),
			f.Record([]objform.Member[*memform.Node]{{Name: "Name", Value: mustScalar("ok")}}),
			f.Record([]objform.Member[*memform.Node]{{Name: "Name", Value: mustScalar(3)}}),
		}),
	}})

	var got group
	err := newEngine().Deserialize(form, &got)
	var pe *objform.PathError
	if !errors.As(err, &pe) {
		t.Fatalf("Deserialize = %v, want PathError", err)
	}
	if pe.Path != "Friends[2].Name" {
		t.Errorf("Path = %q, want Friends[2].Name", pe.Path)
	}
}
