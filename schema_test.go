package objform

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCaseName(t *testing.T) {
	tests := []struct {
		conv, in, want string
	}{
		{"upper", "HostName", "HOSTNAME"},
		{"lower", "HostName", "hostname"},
		{"pascal", "HostName", "HostName"},
		{"camel", "HostName", "hostName"},
		{"snake", "HostName", "host_name"},
		{"kebab", "HostName", "host-name"},
		{"snake", "HTTPServer", "http_server"},
		{"snake", "ID", "id"},
		{"camel", "X", "x"},
		{"snake", "ParseURL", "parse_url"},
	}
	for _, tc := range tests {
		if got := caseName(tc.conv, tc.in); got != tc.want {
			t.Errorf("caseName(%q, %q) = %q, want %q", tc.conv, tc.in, got, tc.want)
		}
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag     string
		want    tagInfo
		wantErr bool
	}{
		{"", tagInfo{}, false},
		{"-", tagInfo{ignore: true}, false},
		{"omitdefault", tagInfo{omitDefault: true}, false},
		{"omitempty,notnull", tagInfo{omitEmpty: true, notNull: true}, false},
		{"name=foo", tagInfo{name: "foo"}, false},
		{"case=snake", tagInfo{caseConv: "snake"}, false},
		{"case=shouting", tagInfo{}, true},
		{"omiteq=5", tagInfo{omitEq: "5"}, false},
		{"conv=unixtime,always,enum", tagInfo{conv: "unixtime", always: true, enum: true}, false},
		{"bogus", tagInfo{}, true},
	}
	for _, tc := range tests {
		got, err := parseTag(tc.tag, "F")
		if (err != nil) != tc.wantErr {
			t.Errorf("parseTag(%q) err = %v, wantErr %v", tc.tag, err, tc.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if diff := cmp.Diff(got, tc.want, cmp.AllowUnexported(tagInfo{})); diff != "" {
			t.Errorf("parseTag(%q) (-got+want):\n%s", tc.tag, diff)
		}
	}
}

func TestBuildSchema(t *testing.T) {
	type Inner struct {
		ID   int
		Note string `objform:"-"`
	}
	type Outer struct {
		Inner
		ID    int
		Label string `objform:"name=tag"`
		priv  int
	}
	_ = Outer{}.priv

	s, err := getSchema(reflect.TypeFor[Outer]())
	if err != nil {
		t.Fatalf("getSchema: %v", err)
	}

	type flat struct{ Name, Owner string }
	var got []flat
	for _, m := range s.Members {
		got = append(got, flat{m.Name, m.Owner})
	}
	want := []flat{
		{"ID", "Inner"},
		{"ID", "Outer"},
		{"tag", ""},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("members (-got+want):\n%s", diff)
	}

	if m := s.memberNamed("ID", "Inner"); m == nil || m.Owner != "Inner" {
		t.Errorf("memberNamed(ID, Inner) = %+v", m)
	}
	if m := s.memberNamed("ID", ""); m == nil {
		t.Errorf("memberNamed(ID, \"\") found nothing, want fallback match")
	}
	if m := s.memberNamed("tag", ""); m == nil || m.Type.Kind() != reflect.String {
		t.Errorf("memberNamed(tag) = %+v", m)
	}
}

func TestSchemaEmbeddedPointer(t *testing.T) {
	type Base struct{ N int }
	type Holder struct {
		*Base
		S string
	}

	s, err := getSchema(reflect.TypeFor[Holder]())
	if err != nil {
		t.Fatalf("getSchema: %v", err)
	}
	var n *member
	for _, m := range s.Members {
		if m.Name == "N" {
			n = m
		}
	}
	if n == nil {
		t.Fatalf("embedded member N not found")
	}

	// Reading through a nil embedded pointer yields a zero.
	v := n.GetWithZero(reflect.ValueOf(Holder{}))
	if v.Int() != 0 {
		t.Errorf("GetWithZero through nil = %v, want 0", v)
	}

	// Writing allocates the intermediate pointer.
	h := &Holder{}
	hv := reflect.ValueOf(h).Elem()
	n.GetWithAlloc(hv).SetInt(7)
	if h.Base == nil || h.Base.N != 7 {
		t.Errorf("GetWithAlloc did not allocate: %+v", h)
	}
}

func TestMemberSkip(t *testing.T) {
	tests := []struct {
		name string
		m    member
		v    any
		want bool
	}{
		{"omitDefaultZero", member{OmitDefault: true}, 0, true},
		{"omitDefaultNonzero", member{OmitDefault: true}, 1, false},
		{"omitEmptySlice", member{OmitEmpty: true}, []int{}, true},
		{"omitEmptyFullSlice", member{OmitEmpty: true}, []int{1}, false},
		{"omitEqMatch", member{OmitEq: reflect.ValueOf(5)}, 5, true},
		{"omitEqMiss", member{OmitEq: reflect.ValueOf(5)}, 4, false},
		{"noDirectives", member{}, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.m.skip(reflect.ValueOf(tc.v)); got != tc.want {
				t.Errorf("skip(%v) = %v, want %v", tc.v, got, tc.want)
			}
		})
	}
}
