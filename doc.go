// Package objform serializes arbitrary Go object graphs into a
// format-independent structured form, and reconstructs them again.
//
// An [Engine] is parameterized by a [Format], the capability set of
// one physical representation. The engine owns everything that does
// not depend on the representation: classifying types, traversing
// members, preserving shared objects and cycles, applying member
// directives, and enforcing registered enum and substitution rules.
// Formats only build and decompose their own opaque form values.
//
// Traversal runs on an explicit trampoline (package
// [github.com/objform/objform/trampoline]) rather than on the
// goroutine stack, so graphs nested tens of thousands of levels deep
// serialize without growing the stack.
//
// # Identity
//
// Within one Serialize call, objects that carry identity (pointers and
// maps, by default) serialize once; later occurrences become
// back-references, and cycles through such objects round-trip intact.
// Values without identity are serialized afresh at each occurrence,
// and a cycle closed exclusively through them is reported as a
// [TypeError]. [WithIdentity] overrides the comparer.
//
// # Directives
//
// Struct members take directives from an `objform:"..."` tag: "-",
// name=, case=, omitdefault, omitempty, omiteq=, notnull, always,
// enum, and conv=. A [Policy] marker field applies directives to a
// whole struct. Nil maps, pointers, and interfaces serialize as the
// null marker; nil slices serialize as empty lists.
package objform
