// Package syncx provides small typed synchronization helpers.
package syncx

import "sync"

// Guard holds a value behind an RWMutex. T should be a value type or
// treated as immutable once stored, since Get hands out copies.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value.
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Write mutates the value under the write lock.
func (g *Guard[T]) Write(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// CompareAndWrite runs fn under the write lock only if cond holds for the
// current value, and reports whether it ran.
func (g *Guard[T]) CompareAndWrite(cond func(T) bool, fn func(*T)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !cond(g.value) {
		return false
	}
	fn(&g.value)
	return true
}

// View projects the guarded value under the read lock.
func View[T, R any](g *Guard[T], fn func(T) R) R {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(g.value)
}
