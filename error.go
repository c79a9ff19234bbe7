package objform

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// TypeError is the error returned when a value or type cannot be
// represented by the engine at all: an unsupported kind (channel,
// function, complex), a cycle through objects that do not carry
// identity, or a form that cannot hold a required marker. TypeErrors
// indicate a caller or schema mistake, and abort the operation even
// when error collection is enabled.
type TypeError struct {
	// Type is the name of the type that caused the error.
	Type string
	// Reason is an explanation of why the value isn't representable.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("objform cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(t reflect.Type, reason string, args ...any) error {
	ts := ""
	if t != nil {
		ts = t.String()
	}
	return TypeError{ts, fmt.Errorf(reason, args...)}
}

// PathError is a structural failure at one location in an object
// graph. Path is the dotted chain of member names and element indices
// leading to the failure, such as "Friends[2].Name".
//
// By default a PathError aborts the whole operation. With
// [CollectErrors] enabled, PathErrors are accumulated and returned
// joined, the affected subtree resolves to its default value, and the
// rest of the graph is processed normally.
type PathError struct {
	Path   string
	Reason error
}

func (e *PathError) Error() string {
	if e.Path == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("at %s: %s", e.Path, e.Reason)
}

func (e *PathError) Unwrap() error {
	return e.Reason
}

// Named structural errors.
var (
	// ErrUnknownTypeTag is reported when a serialized type tag does not
	// resolve to a registered type.
	ErrUnknownTypeTag = errors.New("unknown type tag")

	// ErrUnknownRef is reported when a back-reference names an id that
	// has no corresponding referable form earlier in the input.
	ErrUnknownRef = errors.New("back-reference to unknown id")

	// ErrArityMismatch is reported when a serialized tuple has a
	// different number of elements than the target tuple type.
	ErrArityMismatch = errors.New("tuple arity mismatch")

	// ErrFormMismatch is reported when a serialized form has the wrong
	// shape for the target type, e.g. a list where a record is needed.
	ErrFormMismatch = errors.New("form does not match target type")
)

// isFatal reports whether err must abort the operation even in
// error-collection mode.
func isFatal(err error) bool {
	var te TypeError
	return errors.As(err, &te)
}

// pathString renders a path segment stack as a dotted path. Index
// segments (of the form "[N]") attach to the preceding segment
// without a dot.
func pathString(segs []string) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 && !strings.HasPrefix(s, "[") {
			b.WriteByte('.')
		}
		b.WriteString(s)
	}
	return b.String()
}

// withPath wraps err with the dotted path in segs, unless err is
// already located or fatal.
func withPath(segs []string, err error) error {
	if err == nil || isFatal(err) {
		return err
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	return &PathError{Path: pathString(segs), Reason: err}
}
