// Package syncx provides small synchronization helpers shared by the detection loop and its reporters.
package syncx

import "sync"

// RWGuard pairs a value with the RWMutex that protects it. The value is only reachable
// through Write and View, so it cannot be touched without the lock.
type RWGuard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Write runs fn under the write lock.
func (g *RWGuard[T]) Write(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// View computes a result from the value under the read lock. fn must copy anything it
// returns that aliases the value.
func View[T, R any](g *RWGuard[T], fn func(T) R) R {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(g.value)
}
