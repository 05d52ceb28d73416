// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"errors"
	"sync"
)

// ErrLeaderPanicked is returned to followers whose leader's fn panicked.
// The leader itself re-panics with the original value.
var ErrLeaderPanicked = errors.New("singleflight: leader panicked")

// Group coalesces concurrent function calls for the same key K so that
// the supplied fn is executed at most once per flight. Other concurrent
// callers wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and runs fn.
//   - Followers wait on c.done. Publishing (val, err) happens-before
//     close(c.done), so reads after <-done observe the final values.
//   - The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// Do runs fn once for the given key. Concurrent calls with the same key
// wait for the shared result. shared reports whether the result came
// from another caller's fn.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err, true
	}

	c := &call[V]{done: make(chan struct{}), err: ErrLeaderPanicked}
	g.m[key] = c
	g.mu.Unlock()

	// Runs on normal return and on panic, so followers are never stranded.
	defer func() {
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
	}()

	v, err = fn()
	c.val, c.err = v, err
	return v, err, false
}

