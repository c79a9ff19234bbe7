// Package trampoline runs chains of suspended computation steps on an
// explicit, heap-allocated stack instead of the goroutine stack, so
// that the depth of a computation is bounded by available memory
// rather than by the native stack budget.
//
// A computation is expressed as a [Step]. When invoked, a step either
// finishes with a value ([Done]), or requests the result of another
// step first ([Call]). In the latter case the step is re-invoked later
// with that result. [Run] drives a step chain to completion.
package trampoline

// A Step is one suspended unit of a computation.
//
// A step is invoked with the result of the nested step it most
// recently requested with [Call], or nil on its first invocation. It
// returns [Done] when it has produced its final result, or [Call]
// when it needs the result of another step before it can continue.
//
// Steps must communicate only through the result values passed
// between them. Once a step returns a Call, it is re-invoked exactly
// once with the callee's result; it is never re-entered with a stale
// result.
type Step func(prev any) Next

// Next is the outcome of invoking a [Step]: either a final value, or
// a request for the result of another step.
//
// The zero Next is equivalent to Done(nil), and avoids an allocation
// in the common "nothing more to do" case.
type Next struct {
	value any
	step  Step
}

// Done reports that the step has finished with the given result.
func Done(v any) Next { return Next{value: v} }

// Call requests the result of s. The calling step is re-invoked with
// s's result once s has run to completion.
func Call(s Step) Next { return Next{step: s} }

// None is the no-op equivalent of Done(nil).
var None Next

// Run drives s to completion and returns its result.
//
// Run maintains its own stack of pending steps, so the nesting depth
// of Call chains is limited only by available memory. It is
// algebraically equivalent to native call/return: Call pushes the
// caller and transfers control to the callee, Done pops the most
// recent caller and hands it the value.
func Run(s Step) any {
	var (
		stack []Step
		cur   = s
		last  any
	)
	for {
		next := cur(last)
		if next.step != nil {
			stack = append(stack, cur)
			cur = next.step
			last = nil
			continue
		}
		if len(stack) == 0 {
			return next.value
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		last = next.value
	}
}
