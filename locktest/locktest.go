// Package locktest provides utilities for testing exclusion primitives. It
// verifies that locks and semaphores from this module (e.g. bakery, spinlock
// and semaphore) never admit more holders than they promise, and that every
// contender eventually gets in.
//
// # Example Usage
//
// Check that a lock admits a single holder at a time:
//
//	var lock bakery.Lock = ...
//	locktest.MutualExclusion(t, 4, 1000, func(id int) func() {
//		return lock.Lock(id).Unlock
//	})
//
// Check that a semaphore never admits more than its capacity:
//
//	sem := semaphore.New(3)
//	locktest.Bound(t, 3, 8, 1000, sem.Acquire, sem.Release)
package locktest

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/mediocregopher/mediocre-go-lib/mrand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// MutualExclusion runs participants goroutines that each enter the critical
// section iterations times. Entering is done by calling lock with the
// participant's id, in the range [0, participants), and leaving by calling the
// returned unlock function.
//
// The function verifies that:
//
//   - No two participants are ever inside the critical section at once.
//   - No update made inside the critical section is lost: a plain, unguarded
//     counter incremented by every entry ends at participants*iterations.
//   - Every participant entered exactly iterations times, i.e. none starved.
func MutualExclusion(t testing.TB, participants, iterations int, lock func(id int) (unlock func())) {
	t.Helper()

	var (
		inside  atomic.Int32
		counter int
		entries = make([]int, participants)
	)

	// Participants yield inside the critical section at different rates to
	// widen the window in which a broken lock would let a second holder in.
	yieldEvery := make([]int, participants)
	for id := range yieldEvery {
		yieldEvery[id] = 1 + mrand.Intn(7)
	}

	var g errgroup.Group
	for id := range participants {
		g.Go(func() error {
			for n := range iterations {
				unlock := lock(id)
				if holders := inside.Add(1); holders != 1 {
					unlock()
					return fmt.Errorf("participant %d observed %d holders on entry %d", id, holders, n)
				}
				before := counter
				if n%yieldEvery[id] == 0 {
					runtime.Gosched()
				}
				counter = before + 1
				entries[id]++
				inside.Add(-1)
				unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, participants*iterations, counter, "lost updates in the critical section")
	for id, n := range entries {
		assert.Equal(t, iterations, n, "participant %d did not complete all entries", id)
	}
}

// Bound runs goroutines goroutines that each call acquire and release
// iterations times, and verifies that no more than limit of them are ever
// between a returned acquire and the matching release.
func Bound(t testing.TB, limit, goroutines, iterations int, acquire, release func()) {
	t.Helper()

	var inside, peak atomic.Int32
	var g errgroup.Group
	for id := range goroutines {
		g.Go(func() error {
			for n := range iterations {
				acquire()
				cur := inside.Add(1)
				for {
					prev := peak.Load()
					if cur <= prev || peak.CompareAndSwap(prev, cur) {
						break
					}
				}
				if int(cur) > limit {
					inside.Add(-1)
					release()
					return fmt.Errorf("goroutine %d observed %d holders on entry %d, limit is %d", id, cur, n, limit)
				}
				runtime.Gosched()
				inside.Add(-1)
				release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, int(peak.Load()), limit)
	if goroutines > 0 && iterations > 0 {
		assert.Positive(t, int(peak.Load()))
	}
}
