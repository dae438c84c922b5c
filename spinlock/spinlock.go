// Package spinlock provides a compare-and-swap spin lock and a value cell
// guarded by one.
//
// A spin lock never parks the goroutine: a contender re-checks the lock until
// it is free. That makes it suitable only for critical sections of a few
// instructions. Anything longer belongs behind a sync.Mutex.
package spinlock

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// activeSpins is how many times a contender re-checks before yielding its
// processor.
const activeSpins = 64

// Mutex is a test-and-test-and-set spin lock. The zero Mutex is unlocked.
//
// A Mutex must not be copied after first use.
type Mutex struct {
	locked atomic.Bool
}

// Lock acquires m, spinning until it is available.
func (m *Mutex) Lock() {
	var spins int
	for {
		// Wait with plain loads so contenders share the cache line until the
		// holder releases it, and only then race for it.
		for m.locked.Load() {
			if spins < activeSpins {
				spins++
				continue
			}
			runtime.Gosched()
		}
		if m.locked.CompareAndSwap(false, true) {
			return
		}
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	return !m.locked.Load() && m.locked.CompareAndSwap(false, true)
}

// Unlock releases m. It panics if m is not locked.
func (m *Mutex) Unlock() {
	if !m.locked.Swap(false) {
		panic(fmt.Errorf("spinlock: unlock of unlocked mutex"))
	}
}

// Cell holds a value of type T that may only be accessed while holding the
// cell's spin lock.
type Cell[T any] struct {
	mu    Mutex
	value T
}

// New returns a Cell holding v.
func New[T any](v T) *Cell[T] {
	return &Cell[T]{value: v}
}

// Lock acquires the cell's lock and returns a Guard through which the value
// can be read and written until the Guard is unlocked.
func (c *Cell[T]) Lock() *Guard[T] {
	c.mu.Lock()
	return &Guard[T]{cell: c}
}

// Do calls f with the cell's value while holding the lock. The lock is
// released when f returns, including when it panics.
func (c *Cell[T]) Do(f func(*T)) {
	g := c.Lock()
	defer g.Unlock()
	f(g.Value())
}

// Guard grants access to a Cell's value while its lock is held.
type Guard[T any] struct {
	cell *Cell[T]
}

// Value returns a pointer to the guarded value. The pointer must not be used
// after Unlock. Value panics if the guard was already unlocked.
func (g *Guard[T]) Value() *T {
	if g.cell == nil {
		panic(fmt.Errorf("spinlock: access through released guard"))
	}
	return &g.cell.value
}

// Unlock releases the cell's lock. It panics if the guard was already
// unlocked.
func (g *Guard[T]) Unlock() {
	if g.cell == nil {
		panic(fmt.Errorf("spinlock: unlock of released guard"))
	}
	c := g.cell
	g.cell = nil
	c.mu.Unlock()
}
