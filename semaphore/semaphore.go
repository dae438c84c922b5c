package semaphore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/notorious-go/primitives/internal/waitq"
	"github.com/notorious-go/primitives/trace"
)

// Config describes a Semaphore. The zero Config is invalid; Max must be set.
type Config struct {
	// Max is the maximum number of tokens that can be held at once. It must be
	// positive.
	Max int

	// Trace contains optional callbacks invoked as tokens are acquired and
	// released.
	Trace trace.SemaphoreTrace
}

// New creates a Semaphore from the Config. It panics if cfg.Max is not
// positive, since a semaphore without capacity could never be acquired.
func (cfg Config) New() *Semaphore {
	if cfg.Max <= 0 {
		panic(fmt.Errorf("semaphore: capacity must be positive, got %d", cfg.Max))
	}
	s := &Semaphore{max: cfg.Max, trace: cfg.Trace}
	s.cond.L = &s.mu
	return s
}

// Semaphore is a counting semaphore bounding the number of goroutines that
// hold a token at the same time.
//
// It is a monitor: a mutex-protected counter paired with a queue of waiting
// goroutines. Acquire waits while the counter is at capacity, and Release wakes
// exactly one waiter, since a single release admits exactly one more holder.
//
// A Semaphore must not be copied after first use.
type Semaphore struct {
	max   int
	trace trace.SemaphoreTrace

	mu sync.Mutex
	// count is the number of tokens currently held.
	//
	// INVARIANT: 0 <= count <= max
	//
	// GUARDED_BY(mu)
	count int
	// cond parks goroutines waiting for count to drop below max.
	cond waitq.Cond
}

// New creates a semaphore allowing up to max concurrent holders. It panics if
// max is not positive.
func New(max int) *Semaphore {
	return Config{Max: max}.New()
}

// String returns a human-readable representation of the semaphore's state in
// the "Semaphore(acquired/capacity)" format.
func (s *Semaphore) String() string {
	return fmt.Sprintf("Semaphore(%v/%v)", s.Len(), s.max)
}

// Len returns the number of tokens currently acquired but not yet released.
func (s *Semaphore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Cap returns the maximum number of tokens that can be acquired at once.
func (s *Semaphore) Cap() int {
	return s.max
}

// Acquire blocks until a token becomes available, then acquires it. The
// calling goroutine is parked while it waits; it does not spin.
//
// Typical usage pattern:
//
//	s.Acquire()
//	defer s.Release()
//	// ... do work ...
func (s *Semaphore) Acquire() {
	// The background context is never done, so the wait cannot fail.
	_ = s.AcquireContext(context.Background())
}

// AcquireContext is like Acquire, but gives up waiting when ctx is done. It
// returns nil once a token is acquired, or ctx.Err() if the context ended
// first, in which case no token is held.
//
// If a token is available immediately, AcquireContext succeeds even when ctx
// is already done. A waiter woken at the same moment its context is cancelled
// also keeps the token, rather than dropping the wake-up on the floor.
func (s *Semaphore) AcquireContext(ctx context.Context) error {
	var start time.Time
	s.mu.Lock()
	if s.count >= s.max {
		start = time.Now()
	}
	for s.count >= s.max {
		if err := s.cond.Wait(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.count++
	info := s.common()
	s.mu.Unlock()

	if fn := s.trace.Acquired; fn != nil {
		var waited time.Duration
		if !start.IsZero() {
			waited = time.Since(start)
		}
		fn(trace.SemaphoreAcquired{SemaphoreCommon: info, WaitTime: waited})
	}
	return nil
}

// TryAcquire attempts to acquire a token without blocking. Returns true if a
// token was acquired, false if the semaphore is at capacity.
//
// Note: TryAcquire may succeed even when other goroutines are blocked on
// Acquire, since a released token is not reserved for the waiter it wakes.
//
//	if s.TryAcquire() {
//	    defer s.Release()
//	    // ... do work ...
//	} else {
//	    // ... handle the "too busy" case ...
//	}
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	if s.count >= s.max {
		s.mu.Unlock()
		return false
	}
	s.count++
	info := s.common()
	s.mu.Unlock()

	if fn := s.trace.Acquired; fn != nil {
		fn(trace.SemaphoreAcquired{SemaphoreCommon: info})
	}
	return true
}

// Release returns a token to the semaphore and wakes one blocked goroutine, if
// any. Release never blocks.
//
// Release must be called exactly once for each successful Acquire,
// AcquireContext or TryAcquire. Releasing a token that was never acquired
// panics.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if s.count <= 0 {
		s.mu.Unlock()
		panic(fmt.Errorf("semaphore: release without matching acquire"))
	}
	s.count--
	woke := s.cond.Signal()
	info := s.common()
	s.mu.Unlock()

	if fn := s.trace.Released; fn != nil {
		fn(trace.SemaphoreReleased{SemaphoreCommon: info, Woke: woke})
	}
}

// common must be called with s.mu held.
func (s *Semaphore) common() trace.SemaphoreCommon {
	return trace.SemaphoreCommon{
		Count:   s.count,
		Max:     s.max,
		Waiting: s.cond.Len(),
	}
}
