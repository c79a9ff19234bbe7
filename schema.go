package objform

import (
	"fmt"
	"iter"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Policy is a marker type for type-level directives. Declaring an
// unexported field of type Policy applies the directives in its tag
// to every member of the struct:
//
//	type Point struct {
//	    _ objform.Policy `objform:"omitdefault,case=snake"`
//	    X, Y int
//	}
//
// Recognized type-level directives are omitdefault, omitempty,
// notnull, and case=upper|lower|camel|pascal|snake|kebab. A directive
// on an individual member always overrides the type-level default;
// the "always" directive cancels an inherited omit policy for one
// member.
type Policy struct{}

var policyType = reflect.TypeFor[Policy]()

// member describes one data member of a record type: its wire name
// after renaming, how to reach it on an instance, and its behavioral
// directives.
type member struct {
	Name  string
	Owner string
	Index [][]int
	Type  reflect.Type

	OmitDefault bool
	OmitEmpty   bool
	OmitEq      reflect.Value
	NotNull     bool
	Enum        bool
	Conv        string
}

// GetWithZero loads the member from structVal. If loading requires
// traversing a nil pointer into an embedded struct, GetWithZero
// returns a non-settable zero value of the member's type.
func (m *member) GetWithZero(structVal reflect.Value) reflect.Value {
	v := structVal
	for i, hop := range m.Index {
		if i > 0 {
			if v.IsNil() {
				return reflect.Zero(m.Type)
			}
			v = v.Elem()
		}
		v = v.FieldByIndex(hop)
	}
	return v
}

// GetWithAlloc loads the member from structVal, allocating embedded
// struct pointers as needed. The returned value is settable.
func (m *member) GetWithAlloc(structVal reflect.Value) reflect.Value {
	v := structVal
	for i, hop := range m.Index {
		if i > 0 {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.FieldByIndex(hop)
	}
	return v
}

// skip reports whether the member's current value should produce no
// entry in the serialized form at all.
func (m *member) skip(v reflect.Value) bool {
	if m.OmitDefault && v.IsZero() {
		return true
	}
	if m.OmitEmpty {
		switch v.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
			if v.Len() == 0 {
				return true
			}
		default:
			if v.IsZero() {
				return true
			}
		}
	}
	if m.OmitEq.IsValid() && v.Comparable() && v.Interface() == m.OmitEq.Interface() {
		return true
	}
	return false
}

// schema is the cached per-type member list of a record type.
type schema struct {
	Name    string
	Type    reflect.Type
	Members []*member
}

// memberNamed finds the schema member matching a serialized member
// name, using the owner disambiguator when two members share a name.
func (s *schema) memberNamed(name, owner string) *member {
	var byName *member
	for _, m := range s.Members {
		if m.Name != name {
			continue
		}
		if m.Owner == owner {
			return m
		}
		if byName == nil {
			byName = m
		}
	}
	return byName
}

type schemaEntry struct {
	s   *schema
	err error
}

var schemas sync.Map // reflect.Type → schemaEntry

// getSchema returns the member schema for t, computing and caching it
// on first use. Type shapes are static, so the cache never
// invalidates.
func getSchema(t reflect.Type) (*schema, error) {
	if e, ok := schemas.Load(t); ok {
		ent := e.(schemaEntry)
		return ent.s, ent.err
	}
	s, err := buildSchema(t)
	schemas.LoadOrStore(t, schemaEntry{s, err})
	return s, err
}

func buildSchema(t reflect.Type) (*schema, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s is not a struct", t)
	}

	ret := &schema{
		Name: t.String(),
		Type: t,
	}

	var policy tagInfo
	for field := range structFields(t, nil) {
		if !field.IsExported() && field.Type == policyType {
			p, err := parseTag(field.Tag.Get("objform"), field.Name)
			if err != nil {
				return nil, fmt.Errorf("policy directives on %s: %w", ret.Name, err)
			}
			policy = p
		}
	}

	for field, owner := range structFields(t, nil) {
		if !field.IsExported() {
			continue
		}
		info, err := parseTag(field.Tag.Get("objform"), field.Name)
		if err != nil {
			return nil, fmt.Errorf("member %s.%s: %w", ret.Name, field.Name, err)
		}
		if info.ignore {
			continue
		}

		m := &member{
			Name:        field.Name,
			Owner:       owner.Name(),
			Index:       allocSteps(t, field.Index),
			Type:        field.Type,
			OmitDefault: info.omitDefault || (policy.omitDefault && !info.always),
			OmitEmpty:   info.omitEmpty || (policy.omitEmpty && !info.always),
			NotNull:     info.notNull || policy.notNull,
			Enum:        info.enum,
			Conv:        info.conv,
		}
		switch {
		case info.name != "":
			m.Name = info.name
		case info.caseConv != "":
			m.Name = caseName(info.caseConv, field.Name)
		case policy.caseConv != "":
			m.Name = caseName(policy.caseConv, field.Name)
		}
		if info.omitEq != "" {
			ev, err := parseScalar(field.Type, info.omitEq)
			if err != nil {
				return nil, fmt.Errorf("member %s.%s: invalid omiteq value %q: %w", ret.Name, field.Name, info.omitEq, err)
			}
			m.OmitEq = ev
		}
		ret.Members = append(ret.Members, m)
	}

	// The owner disambiguator is only carried for names that actually
	// collide across the embedding hierarchy.
	seen := map[string]int{}
	for _, m := range ret.Members {
		seen[m.Name]++
	}
	for _, m := range ret.Members {
		if seen[m.Name] == 1 {
			m.Owner = ""
		}
	}
	return ret, nil
}

// tagInfo is the parsed form of an `objform:"..."` struct tag.
type tagInfo struct {
	ignore      bool
	name        string
	caseConv    string
	omitDefault bool
	omitEmpty   bool
	omitEq      string
	notNull     bool
	always      bool
	enum        bool
	conv        string
}

func parseTag(tag, fieldName string) (tagInfo, error) {
	var info tagInfo
	if tag == "" {
		return info, nil
	}
	if tag == "-" {
		info.ignore = true
		return info, nil
	}
	for _, f := range strings.Split(tag, ",") {
		switch {
		case f == "omitdefault":
			info.omitDefault = true
		case f == "omitempty":
			info.omitEmpty = true
		case f == "notnull":
			info.notNull = true
		case f == "always":
			info.always = true
		case f == "enum":
			info.enum = true
		case strings.HasPrefix(f, "name="):
			info.name = strings.TrimPrefix(f, "name=")
		case strings.HasPrefix(f, "case="):
			c := strings.TrimPrefix(f, "case=")
			switch c {
			case "upper", "lower", "camel", "pascal", "snake", "kebab":
				info.caseConv = c
			default:
				return info, fmt.Errorf("unknown case convention %q", c)
			}
		case strings.HasPrefix(f, "omiteq="):
			info.omitEq = strings.TrimPrefix(f, "omiteq=")
		case strings.HasPrefix(f, "conv="):
			info.conv = strings.TrimPrefix(f, "conv=")
		case f == "":
			// trailing comma
		default:
			return info, fmt.Errorf("unknown directive %q", f)
		}
	}
	return info, nil
}

// parseScalar converts a tag literal into a value of the given scalar
// type, for omiteq comparisons.
func parseScalar(t reflect.Type, s string) (reflect.Value, error) {
	switch {
	case t.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b).Convert(t), nil
	case intKinds.Has(t.Kind()):
		i64, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(i64).Convert(t), nil
	case uintKinds.Has(t.Kind()):
		u64, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(u64).Convert(t), nil
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		f64, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f64).Convert(t), nil
	case t.Kind() == reflect.String:
		return reflect.ValueOf(s).Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("type %s cannot be compared to a tag literal", t)
}

// caseName renames a Go field name according to a declared
// convention.
func caseName(conv, name string) string {
	switch conv {
	case "upper":
		return strings.ToUpper(name)
	case "lower":
		return strings.ToLower(name)
	case "pascal":
		return name
	case "camel":
		ws := splitWords(name)
		ws[0] = strings.ToLower(ws[0])
		return strings.Join(ws, "")
	case "snake":
		return joinLower(splitWords(name), "_")
	case "kebab":
		return joinLower(splitWords(name), "-")
	}
	return name
}

func joinLower(words []string, sep string) string {
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, sep)
}

// splitWords splits a Go identifier into words at case boundaries.
// Runs of capitals stay together ("HTTPServer" → "HTTP", "Server").
func splitWords(name string) []string {
	var words []string
	runes := []rune(name)
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		if unicode.IsUpper(cur) && !unicode.IsUpper(prev) {
			boundary = true
		} else if unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			boundary = true
		}
		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	words = append(words, string(runes[start:]))
	return words
}

// allocSteps partitions a multi-hop traversal of struct fields into
// segments that end at either the final value, or at a struct pointer
// that might be nil. Used by GetWithZero and GetWithAlloc to load
// embedded struct fields that require traversing a nil pointer.
func allocSteps(t reflect.Type, idx []int) [][]int {
	var ret [][]int
	prev := 0
	t = t.Field(idx[0]).Type
	for i := 1; i < len(idx); i++ {
		if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
			// Hop through a struct pointer that might be nil, cut.
			ret = append(ret, idx[prev:i])
			prev = i
			t = t.Elem()
		}
		t = t.Field(idx[i]).Type
	}
	ret = append(ret, idx[prev:])
	return ret
}

// structFields yields the fields of t, flattening embedded structs,
// together with the struct type that declares each field.
func structFields(t reflect.Type, idx []int) iter.Seq2[reflect.StructField, reflect.Type] {
	return func(yield func(reflect.StructField, reflect.Type) bool) {
		for i := range t.NumField() {
			f := t.Field(i)
			idx = append(idx, i)
			if f.Anonymous {
				at := f.Type
				if at.Kind() == reflect.Pointer {
					at = at.Elem()
				}
				if at.Kind() == reflect.Struct {
					for af, owner := range structFields(at, idx) {
						if !yield(af, owner) {
							return
						}
					}
					idx = idx[:len(idx)-1]
					continue
				}
			}
			f.Index = append([]int(nil), idx...)
			if !yield(f, t) {
				return
			}
			idx = idx[:len(idx)-1]
		}
	}
}
