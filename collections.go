package objform

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/creachadair/mds/queue"
)

// Stack is a slice-backed LIFO container that serializes as a
// sequence. Elements iterates top-down, and the engine stores the
// stack in insertion order, so a round trip preserves both content
// and order. The zero Stack is ready for use.
type Stack[T any] struct {
	els []T
}

// NewStack returns a stack with vs pushed in order, so the last value
// of vs is the top.
func NewStack[T any](vs ...T) *Stack[T] {
	s := new(Stack[T])
	for _, v := range vs {
		s.Push(v)
	}
	return s
}

// Push places v on top of the stack.
func (s *Stack[T]) Push(v T) { s.els = append(s.els, v) }

// Pop removes and returns the top of the stack, if any.
func (s *Stack[T]) Pop() (T, bool) {
	if len(s.els) == 0 {
		var zero T
		return zero, false
	}
	v := s.els[len(s.els)-1]
	s.els = s.els[:len(s.els)-1]
	return v, true
}

// Top returns the top of the stack without removing it.
func (s *Stack[T]) Top() (T, bool) {
	if len(s.els) == 0 {
		var zero T
		return zero, false
	}
	return s.els[len(s.els)-1], true
}

func (s *Stack[T]) Len() int { return len(s.els) }

// Elements iterates the stack from the top down.
func (s *Stack[T]) Elements() iter.Seq[any] {
	return func(yield func(any) bool) {
		for i := len(s.els) - 1; i >= 0; i-- {
			if !yield(s.els[i]) {
				return
			}
		}
	}
}

// Append pushes v. It implements [Sequence].
func (s *Stack[T]) Append(v any) error {
	tv, ok := v.(T)
	if !ok {
		return fmt.Errorf("cannot append %T to Stack[%s]", v, reflect.TypeFor[T]())
	}
	s.Push(tv)
	return nil
}

// LIFO marks the stack's iteration order.
func (s *Stack[T]) LIFO() {}

func (s *Stack[T]) ElemType() reflect.Type { return reflect.TypeFor[T]() }

// Queue is a FIFO container that serializes as a sequence. It is
// backed by an mds queue; the zero Queue is ready for use.
type Queue[T any] struct {
	q queue.Queue[T]
}

// NewQueue returns a queue holding vs in order.
func NewQueue[T any](vs ...T) *Queue[T] {
	q := new(Queue[T])
	for _, v := range vs {
		q.Add(v)
	}
	return q
}

// Add appends v to the back of the queue.
func (q *Queue[T]) Add(v T) { q.q.Add(v) }

// Pop removes and returns the front of the queue, if any.
func (q *Queue[T]) Pop() (T, bool) { return q.q.Pop() }

func (q *Queue[T]) Len() int { return q.q.Len() }

// Elements iterates the queue from front to back.
func (q *Queue[T]) Elements() iter.Seq[any] {
	return func(yield func(any) bool) {
		for i := 0; i < q.q.Len(); i++ {
			v, ok := q.q.Peek(i)
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Append adds v at the back. It implements [Sequence].
func (q *Queue[T]) Append(v any) error {
	tv, ok := v.(T)
	if !ok {
		return fmt.Errorf("cannot append %T to Queue[%s]", v, reflect.TypeFor[T]())
	}
	q.Add(tv)
	return nil
}

func (q *Queue[T]) ElemType() reflect.Type { return reflect.TypeFor[T]() }

// Pair is a 2-tuple. It serializes as a fixed two-element tuple, with
// each position keeping its own static type.
type Pair[K, V any] struct {
	Key   K
	Value V
}

func (p *Pair[K, V]) Arity() int { return 2 }

func (p *Pair[K, V]) At(i int) any {
	switch i {
	case 0:
		return p.Key
	case 1:
		return p.Value
	}
	panic(fmt.Sprintf("index %d out of range for Pair", i))
}

func (p *Pair[K, V]) TypeAt(i int) reflect.Type {
	switch i {
	case 0:
		return reflect.TypeFor[K]()
	case 1:
		return reflect.TypeFor[V]()
	}
	panic(fmt.Sprintf("index %d out of range for Pair", i))
}

func (p *Pair[K, V]) SetAt(i int, v any) error {
	switch i {
	case 0:
		kv, ok := v.(K)
		if !ok {
			return fmt.Errorf("cannot store %T in Pair key of type %s", v, reflect.TypeFor[K]())
		}
		p.Key = kv
	case 1:
		vv, ok := v.(V)
		if !ok {
			return fmt.Errorf("cannot store %T in Pair value of type %s", v, reflect.TypeFor[V]())
		}
		p.Value = vv
	default:
		return fmt.Errorf("index %d out of range for Pair", i)
	}
	return nil
}
