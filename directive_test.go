package objform_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/objform/objform"
	"github.com/objform/objform/memform"
)

func memberNames(form *memform.Node) []string {
	names := make([]string, 0, len(form.Members))
	for _, m := range form.Members {
		names = append(names, m.Name)
	}
	return names
}

func TestDirectives(t *testing.T) {
	type server struct {
		_        objform.Policy `objform:"omitdefault,case=snake"`
		HostName string
		Port     int    `objform:"name=port_number"`
		Retries  int    `objform:"always"`
		Secret   string `objform:"-"`
		MaxIdle  int    `objform:"omiteq=5"`
	}

	tests := []struct {
		name string
		in   server
		want []string
	}{
		{"allDefault", server{MaxIdle: 5}, []string{"retries"}},
		{"populated",
			server{HostName: "h", Port: 80, Retries: 2, Secret: "s", MaxIdle: 9},
			[]string{"host_name", "port_number", "retries", "max_idle"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			form, err := newEngine().Serialize(tc.in)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			if diff := cmp.Diff(memberNames(form), tc.want); diff != "" {
				t.Errorf("members (-got+want):\n%s", diff)
			}
		})
	}
}

func TestOmittedMemberKeepsDefault(t *testing.T) {
	type opts struct {
		Level int `objform:"omitdefault"`
		Name  string
	}
	en := newEngine()
	form, err := en.Serialize(opts{Name: "x"})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got := opts{Level: 3}
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Level != 3 {
		t.Errorf("Level = %d, want preexisting 3", got.Level)
	}
}

func TestUnknownMemberIgnored(t *testing.T) {
	type small struct{ A int }
	f := memform.Format{}
	form := f.Record([]objform.Member[*memform.Node]{
		{Name: "A", Value: mustScalar(1)},
		{Name: "Gone", Value: mustScalar("x")},
	})
	var got small
	if err := newEngine().Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.A != 1 {
		t.Errorf("A = %d, want 1", got.A)
	}
}

func TestNotNull(t *testing.T) {
	type req struct {
		Must *point `objform:"notnull"`
	}
	en := newEngine()
	if _, err := en.Serialize(req{}); err == nil {
		t.Errorf("Serialize(nil notnull member) succeeded, want error")
	}

	f := memform.Format{}
	form := f.Record([]objform.Member[*memform.Node]{{Name: "Must", Value: f.Null()}})
	var got req
	if err := en.Deserialize(form, &got); err == nil {
		t.Errorf("Deserialize(null notnull member) succeeded, want error")
	}
}

type shape interface{ Area() float64 }

type circle struct{ R float64 }

func (c circle) Area() float64 { return 3.14159 * c.R * c.R }

type box struct{ W, H float64 }

func (b *box) Area() float64 { return b.W * b.H }

type drawing struct{ Shapes []shape }

func TestPolymorphism(t *testing.T) {
	en := newEngine()
	en.Register(circle{})
	en.RegisterName("box", &box{})

	in := drawing{Shapes: []shape{circle{R: 1}, &box{W: 2, H: 3}}}
	got := roundTrip(t, en, in)
	if diff := cmp.Diff(got, in); diff != "" {
		t.Errorf("round trip (-got+want):\n%s", diff)
	}
}

func TestScalarInAnyNeedsNoTag(t *testing.T) {
	type bag struct{ V any }
	en := newEngine()
	form, err := en.Serialize(bag{V: 42})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if form.Members[0].Value.HasTag {
		t.Errorf("plain scalar in any carries a tag")
	}
	got := roundTrip(t, en, bag{V: 42})
	if got.V != 42 {
		t.Errorf("V = %v (%T), want 42", got.V, got.V)
	}
}

func TestUnregisteredInAny(t *testing.T) {
	type bag struct{ V any }
	_, err := newEngine().Serialize(bag{V: point{1, 2}})
	var te objform.TypeError
	if !errors.As(err, &te) {
		t.Errorf("Serialize(unregistered type in any) = %v, want TypeError", err)
	}
}

func TestUnknownTypeTag(t *testing.T) {
	type bag struct{ V any }
	f := memform.Format{}
	inner := f.Record(nil)
	f.SetTag(inner, "no/such.Type", true)
	form := f.Record([]objform.Member[*memform.Node]{{Name: "V", Value: inner}})

	var got bag
	err := newEngine().Deserialize(form, &got)
	if !errors.Is(err, objform.ErrUnknownTypeTag) {
		t.Errorf("Deserialize = %v, want ErrUnknownTypeTag", err)
	}
}

type secret struct{ Raw string }

func TestSubstitution(t *testing.T) {
	type env struct{ S secret }
	en := newEngine()
	objform.RegisterSubstitution(en,
		func(s secret) (string, error) { return "v1:" + s.Raw, nil },
		func(w string) (secret, error) {
			rest, ok := strings.CutPrefix(w, "v1:")
			if !ok {
				return secret{}, fmt.Errorf("bad prefix %q: %w", w, objform.ErrValueRejected)
			}
			return secret{Raw: rest}, nil
		})

	in := env{S: secret{Raw: "hunter2"}}
	form, err := en.Serialize(in)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if got := form.Members[0].Value.Scalar; got != "v1:hunter2" {
		t.Errorf("wire value = %v, want v1:hunter2", got)
	}
	if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
		t.Errorf("round trip (-got+want):\n%s", diff)
	}

	// A rejected wire value keeps the target's current contents.
	f := memform.Format{}
	bad := f.Record([]objform.Member[*memform.Node]{{Name: "S", Value: mustScalar("garbage")}})
	got := env{S: secret{Raw: "keep"}}
	if err := en.Deserialize(bad, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.S.Raw != "keep" {
		t.Errorf("S.Raw = %q, want keep", got.S.Raw)
	}
}

func TestSharedSubstituteIdentity(t *testing.T) {
	// Identity is tracked on the original object, so a substituted
	// pointer shared across the graph still deserializes to one
	// instance.
	type holder struct{ A, B *secret }
	en := newEngine()
	objform.RegisterSubstitution(en,
		func(s *secret) (string, error) { return s.Raw, nil },
		func(w string) (*secret, error) { return &secret{Raw: w}, nil })

	s := &secret{Raw: "shared"}
	got := roundTrip(t, en, holder{A: s, B: s})
	if got.A == nil || got.A != got.B {
		t.Errorf("A and B are distinct after round trip")
	}
}

func TestNamedSubstitution(t *testing.T) {
	type doc struct {
		When  time.Time `objform:"conv=unixtime"`
		Other time.Time
	}
	en := newEngine()
	objform.RegisterNamedSubstitution(en, "unixtime",
		func(t time.Time) (int64, error) { return t.Unix(), nil },
		func(s int64) (time.Time, error) { return time.Unix(s, 0).UTC(), nil })

	in := doc{
		When:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Other: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	form, err := en.Serialize(in)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, ok := form.Members[0].Value.Scalar.(int64); !ok {
		t.Errorf("When wire value = %#v, want int64", form.Members[0].Value.Scalar)
	}
	// The conversion is scoped to the member that names it.
	if _, ok := form.Members[1].Value.Scalar.(time.Time); !ok {
		t.Errorf("Other wire value = %#v, want time.Time", form.Members[1].Value.Scalar)
	}
	if diff := cmp.Diff(roundTrip(t, en, in), in); diff != "" {
		t.Errorf("round trip (-got+want):\n%s", diff)
	}
}

type color int

const (
	red color = iota
	green
	blue
)

func TestEnumEnforcement(t *testing.T) {
	en := newEngine(objform.EnforceEnums())
	objform.RegisterEnum(en, red, green, blue)

	form, err := en.Serialize(color(7))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got := green
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got != green {
		t.Errorf("illegal enum value overwrote target: got %v", got)
	}

	if got := roundTrip(t, en, blue); got != blue {
		t.Errorf("legal value = %v, want blue", got)
	}
}

func TestFlagEnforcement(t *testing.T) {
	type perm uint8
	const (
		permR perm = 1 << iota
		permW
		permX
	)
	en := newEngine(objform.EnforceEnums())
	objform.RegisterFlags(en, permR, permW, permX)

	if got := roundTrip(t, en, permR|permX); got != permR|permX {
		t.Errorf("legal flag combination = %v, want %v", got, permR|permX)
	}

	form, err := en.Serialize(perm(8))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var got perm
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got != 0 {
		t.Errorf("illegal flag bits accepted: got %v", got)
	}
}

func TestEnumMemberDirective(t *testing.T) {
	// The enum directive enforces for one member even when the engine
	// does not enforce globally.
	type prefs struct {
		C color `objform:"enum"`
		D color
	}
	en := newEngine()
	objform.RegisterEnum(en, red, green, blue)

	form, err := en.Serialize(prefs{C: 9, D: 9})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var got prefs
	if err := en.Deserialize(form, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.C != 0 {
		t.Errorf("C = %v, want 0 (illegal value discarded)", got.C)
	}
	if got.D != 9 {
		t.Errorf("D = %v, want 9 (unenforced member passes through)", got.D)
	}
}

type audited struct {
	Val     int
	Checked bool `objform:"-"`
}

func (a *audited) BeforeSerialize() error {
	a.Val++
	return nil
}

func (a *audited) AfterDeserialize(form any) error {
	a.Checked = true
	return nil
}

func TestValueHooks(t *testing.T) {
	en := newEngine()
	got := roundTrip(t, en, &audited{Val: 1})
	if got.Val != 2 {
		t.Errorf("Val = %d, want 2 (BeforeSerialize ran once)", got.Val)
	}
	if !got.Checked {
		t.Errorf("AfterDeserialize did not run")
	}
}

func TestRegisteredHooks(t *testing.T) {
	en := newEngine()
	var serialized, before, deserialized int
	en.RegisterHooks(point{}, objform.Hooks{
		AfterSerialize:    func(v, form any) error { serialized++; return nil },
		BeforeDeserialize: func(v, form any) error { before++; return nil },
		AfterDeserialize:  func(v, form any) error { deserialized++; return nil },
	})
	roundTrip(t, en, []point{{1, 2}, {3, 4}})
	if serialized != 2 || before != 2 || deserialized != 2 {
		t.Errorf("hook counts = %d/%d/%d, want 2/2/2", serialized, before, deserialized)
	}
}

func TestHookErrorFailsValue(t *testing.T) {
	en := newEngine()
	boom := errors.New("boom")
	en.RegisterHooks(point{}, objform.Hooks{
		BeforeSerialize: func(v any) error { return boom },
	})
	if _, err := en.Serialize(point{1, 2}); !errors.Is(err, boom) {
		t.Errorf("Serialize = %v, want boom", err)
	}
}

func TestCollectErrorsSerialize(t *testing.T) {
	type rec struct {
		A *point `objform:"notnull"`
		B int
	}
	en := newEngine(objform.CollectErrors())
	form, err := en.Serialize(rec{B: 5})
	if err == nil {
		t.Fatalf("Serialize succeeded, want collected error")
	}
	var pe *objform.PathError
	if !errors.As(err, &pe) || pe.Path != "A" {
		t.Errorf("error = %v, want PathError at A", err)
	}
	// The rest of the record still serialized.
	names := memberNames(form)
	if diff := cmp.Diff(names, []string{"A", "B"}); diff != "" {
		t.Errorf("members (-got+want):\n%s", diff)
	}
	if form.Members[1].Value.Scalar != 5 {
		t.Errorf("B = %v, want 5", form.Members[1].Value.Scalar)
	}
}

func TestCollectErrorsDeserialize(t *testing.T) {
	type rec struct{ A, B int }
	f := memform.Format{}
	form := f.Record([]objform.Member[*memform.Node]{
		{Name: "A", Value: mustScalar("nope")},
		{Name: "B", Value: mustScalar(5)},
	})

	var got rec
	err := newEngine(objform.CollectErrors()).Deserialize(form, &got)
	if err == nil {
		t.Fatalf("Deserialize succeeded, want collected error")
	}
	if got.B != 5 {
		t.Errorf("B = %d, want 5 despite error at A", got.B)
	}
	if got.A != 0 {
		t.Errorf("A = %d, want default 0", got.A)
	}
}

func TestFirstErrorAbortsByDefault(t *testing.T) {
	type rec struct{ A, B int }
	f := memform.Format{}
	form := f.Record([]objform.Member[*memform.Node]{
		{Name: "A", Value: mustScalar("nope")},
		{Name: "B", Value: mustScalar(5)},
	})
	var got rec
	if err := newEngine().Deserialize(form, &got); err == nil {
		t.Errorf("Deserialize succeeded, want error")
	}
	if got.B != 0 {
		t.Errorf("B = %d, want 0 (abort before later members)", got.B)
	}
}
