// Package waitq implements a condition variable whose waits can be abandoned
// when a context is done.
//
// A Cond behaves like sync.Cond: callers hold L while checking their
// condition, call Wait in a loop, and hold L while calling Signal or
// Broadcast. Unlike sync.Cond, each waiter parks on its own channel, which lets
// a waiter leave the queue when its context is cancelled without disturbing
// the wake-ups owed to the others.
package waitq

import (
	"context"
	"sync"
)

// A waiter is a single parked goroutine. Its ready channel is closed exactly
// once, by Signal or Broadcast.
type waiter struct {
	ready chan struct{}
}

// Cond is a FIFO condition variable. The zero value is not usable; L must be
// set before the first call to Wait.
type Cond struct {
	// L is held while observing or changing the condition.
	L sync.Locker

	// waiters are parked in arrival order. GUARDED_BY(L)
	waiters []*waiter
}

// New returns a Cond using l as its locker.
func New(l sync.Locker) *Cond {
	return &Cond{L: l}
}

// Wait atomically unlocks c.L and suspends the calling goroutine until it is
// woken by Signal or Broadcast, or until ctx is done. c.L is locked again
// before Wait returns, in every case.
//
// Wait returns nil when the goroutine was woken, and ctx.Err() when it gave up
// before being woken. A goroutine that is woken at the same moment its context
// is cancelled reports the wake-up, so the caller decides whether its
// condition now holds and no signal is lost.
//
// As with sync.Cond, the caller must re-check its condition in a loop.
func (c *Cond) Wait(ctx context.Context) error {
	w := &waiter{ready: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.L.Unlock()

	select {
	case <-w.ready:
		c.L.Lock()
		return nil
	case <-ctx.Done():
	}

	c.L.Lock()
	select {
	case <-w.ready:
		// Signalled while we were reacquiring the lock.
		return nil
	default:
	}
	c.remove(w)
	return ctx.Err()
}

// Signal wakes the longest-waiting goroutine, if there is one. It reports
// whether a goroutine was woken. The caller must hold c.L.
func (c *Cond) Signal() bool {
	if len(c.waiters) == 0 {
		return false
	}
	w := c.waiters[0]
	c.waiters[0] = nil
	c.waiters = c.waiters[1:]
	close(w.ready)
	return true
}

// Broadcast wakes every waiting goroutine. The caller must hold c.L.
func (c *Cond) Broadcast() {
	for _, w := range c.waiters {
		close(w.ready)
	}
	c.waiters = nil
}

// Len returns the number of parked goroutines. The caller must hold c.L.
func (c *Cond) Len() int {
	return len(c.waiters)
}

func (c *Cond) remove(w *waiter) {
	for i, other := range c.waiters {
		if other == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
