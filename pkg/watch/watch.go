// Package watch provides a single-writer, multi-reader value with
// last-value-wins semantics.
//
// Every Publish bumps a version counter and wakes all waiters. Readers keep
// the last version they have seen and ask for anything newer; intermediate
// values they were too slow to see are skipped, never queued.
package watch

import (
	"context"
	"sync"
)

// Value holds the latest published T.
type Value[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	changed chan struct{}
}

// New returns a Value with nothing published yet. Load reports version 0
// until the first Publish.
func New[T any]() *Value[T] {
	return &Value[T]{changed: make(chan struct{})}
}

// Publish stores v and wakes every waiter. It never blocks on readers.
func (w *Value[T]) Publish(v T) {
	w.mu.Lock()
	w.value = v
	w.version++
	close(w.changed)
	w.changed = make(chan struct{})
	w.mu.Unlock()
}

// Load returns the latest value and its version.
func (w *Value[T]) Load() (T, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value, w.version
}

// Version returns the number of publishes so far.
func (w *Value[T]) Version() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// Wait blocks until a version other than seen is published and returns the
// latest value with its version. The value may be several publishes ahead
// of seen.
func (w *Value[T]) Wait(ctx context.Context, seen uint64) (T, uint64, error) {
	for {
		w.mu.RLock()
		if w.version != seen {
			v, ver := w.value, w.version
			w.mu.RUnlock()
			return v, ver, nil
		}
		ch := w.changed
		w.mu.RUnlock()

		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, seen, ctx.Err()
		}
	}
}
