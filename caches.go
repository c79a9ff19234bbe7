package objform

import (
	"reflect"
	"sync"
)

// cache is a build-once, read-many map from types to compiled codec
// funcs. It is safe for concurrent use.
//
// A build function may re-enter Get for the same type (a type that
// contains itself). The nested call then receives an indirection,
// produced by the caller-supplied indirect hook, that resolves to the
// finished value the first time it is used. This is what makes
// recursive types work without recursing forever at compile time.
type cache[V any] struct {
	m sync.Map // reflect.Type → *centry[V]
}

type centry[V any] struct {
	done chan struct{}
	val  V
}

func (e *centry[V]) resolve() V {
	<-e.done
	return e.val
}

// Get returns the compiled value for t, invoking build the first time
// t is seen. indirect must return a V that delegates to its argument,
// calling it no earlier than the first use of the returned value.
func (c *cache[V]) Get(t reflect.Type, build func() V, indirect func(resolve func() V) V) V {
	e := &centry[V]{done: make(chan struct{})}
	prev, loaded := c.m.LoadOrStore(t, e)
	if loaded {
		ent := prev.(*centry[V])
		select {
		case <-ent.done:
			return ent.val
		default:
			// Either a recursive build on this goroutine, or a build
			// racing on another one. The indirection defers resolution
			// until the value is actually used.
			return indirect(ent.resolve)
		}
	}
	e.val = build()
	close(e.done)
	return e.val
}
