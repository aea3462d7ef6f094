// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group coalesces concurrent function calls for the same key K so that the
// supplied fn runs at most once per flight; other callers wait for the shared
// result.
//
// Concurrency notes:
//   - The first caller for a key becomes the leader and runs fn.
//   - Followers wait on c.done. Publishing (val, err) happens-before
//     close(c.done), so reads after <-done observe the final values.
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's fn.
//   - A panic in fn is converted to an error for followers and re-raised in
//     the leader, so a crashing loader never strands waiters.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done  chan struct{} // closed when val/err are published
	val   V
	err   error
	panic any
}

// Do runs fn once for key. Concurrent calls with the same key wait for the
// shared result. If ctx is cancelled in a follower, that follower returns
// ctx.Err() while the leader continues.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)
	if c.panic != nil {
		panic(c.panic)
	}
	return c.val, c.err
}

// InFlight reports whether a load for key is currently running.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.panic = r
			c.err = fmt.Errorf("singleflight: load panicked: %v", r)
		}
		// Remove the in-flight marker before waking followers so that a
		// follower retrying immediately starts a fresh flight.
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
}
