// Package banker implements Dijkstra's banker's algorithm, which hands out
// units of several resource types to a fixed set of participants without ever
// entering a state that could deadlock.
//
// Every participant declares up front the most it will ever hold of each
// resource (its claim). A unit is granted only if, afterwards, there is still
// some order in which every participant could obtain the rest of its claim,
// finish, and hand everything back. Such a state is called safe.
//
// Claims are what make the check possible: a Bank cannot protect participants
// that take more than they declared, and it panics when one tries.
//
//	forks := banker.New([]int{1, 1}, [][]int{{1, 1}, {1, 1}})
//	forks.Take(0, 0) // true: philosopher 0 can still finish.
//	forks.Take(1, 1) // false: each would hold one fork and wait for the other.
package banker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/notorious-go/primitives/internal/waitq"
)

// Bank tracks the units of each resource held by each participant.
//
// A Bank must not be copied after first use.
type Bank struct {
	mu sync.Mutex
	// available[r] is the number of free units of resource r. GUARDED_BY(mu)
	available []int
	// allocation[p][r] is the number of units of resource r held by
	// participant p.
	//
	// INVARIANT: 0 <= allocation[p][r] <= claim[p][r]
	//
	// GUARDED_BY(mu)
	allocation [][]int
	// claim[p][r] is the most participant p may hold of resource r. Fixed.
	claim [][]int
	// cond parks TakeContext callers until a release changes the state.
	cond waitq.Cond
}

// New creates a Bank with the given free units per resource and the maximum
// claim of each participant: max[p][r] is the most participant p may ever hold
// of resource r. Both slices are copied.
//
// New panics if there are no resources or no participants, if any count is
// negative, if a claim row does not cover every resource, or if a claim
// exceeds the units that exist.
func New(available []int, max [][]int) *Bank {
	if len(available) == 0 {
		panic(fmt.Errorf("banker: at least one resource is required"))
	}
	if len(max) == 0 {
		panic(fmt.Errorf("banker: at least one participant is required"))
	}
	for r, n := range available {
		if n < 0 {
			panic(fmt.Errorf("banker: resource %d has negative units %d", r, n))
		}
	}
	b := &Bank{
		available:  slices.Clone(available),
		allocation: make([][]int, len(max)),
		claim:      make([][]int, len(max)),
	}
	for p, row := range max {
		if len(row) != len(available) {
			panic(fmt.Errorf("banker: participant %d claims %d resources, want %d", p, len(row), len(available)))
		}
		for r, n := range row {
			if n < 0 || n > available[r] {
				panic(fmt.Errorf("banker: participant %d claims %d of resource %d, want [0, %d]", p, n, r, available[r]))
			}
		}
		b.claim[p] = slices.Clone(row)
		b.allocation[p] = make([]int, len(available))
	}
	b.cond.L = &b.mu
	return b
}

// Participants returns the number of participants.
func (b *Bank) Participants() int {
	return len(b.claim)
}

// Resources returns the number of resource types.
func (b *Bank) Resources() int {
	return len(b.available)
}

// Available returns the number of free units of resource r.
func (b *Bank) Available(r int) int {
	b.checkResource(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available[r]
}

// Allocated returns the number of units of resource r held by participant p.
func (b *Bank) Allocated(p, r int) int {
	b.checkParticipant(p)
	b.checkResource(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocation[p][r]
}

// IsSafe reports whether the current state is safe, that is, whether every
// participant can still be granted the rest of its claim in some order.
// States reached only through Take and Release are always safe.
func (b *Bank) IsSafe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.safe()
}

// Take grants one unit of resource r to participant p if one is free and the
// resulting state is safe. Otherwise the state is left unchanged and Take
// returns false.
//
// Take panics if p or r is out of range, or if the unit would take p past its
// claim.
func (b *Bank) Take(p, r int) bool {
	b.checkParticipant(p)
	b.checkResource(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.grant(p, r)
}

// TakeContext is like Take, but waits until the unit can be granted safely. It
// returns nil once the unit is held, or ctx.Err() if ctx is done first, in
// which case nothing was granted.
func (b *Bank) TakeContext(ctx context.Context, p, r int) error {
	b.checkParticipant(p)
	b.checkResource(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.grant(p, r) {
		if err := b.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Release returns one unit of resource r held by participant p, and wakes every
// TakeContext caller so each can check whether its own grant became safe. It
// panics if p holds no unit of r.
func (b *Bank) Release(p, r int) {
	b.checkParticipant(p)
	b.checkResource(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocation[p][r] == 0 {
		panic(fmt.Errorf("banker: participant %d releases resource %d it does not hold", p, r))
	}
	b.allocation[p][r]--
	b.available[r]++
	b.cond.Broadcast()
}

// grant must be called with b.mu held.
func (b *Bank) grant(p, r int) bool {
	if b.allocation[p][r] >= b.claim[p][r] {
		panic(fmt.Errorf("banker: participant %d exceeds its claim of %d on resource %d", p, b.claim[p][r], r))
	}
	if b.available[r] == 0 {
		return false
	}
	b.allocation[p][r]++
	b.available[r]--
	if b.safe() {
		return true
	}
	b.allocation[p][r]--
	b.available[r]++
	return false
}

// safe simulates participants finishing one at a time: any participant whose
// outstanding claim fits in the free units can finish and return its
// allocation. The state is safe if everyone finishes. It must be called with
// b.mu held.
func (b *Bank) safe() bool {
	work := slices.Clone(b.available)
	finished := make([]bool, len(b.claim))
	for remaining := len(finished); remaining > 0; {
		progressed := false
		for p := range finished {
			if finished[p] || !b.fits(p, work) {
				continue
			}
			for r, n := range b.allocation[p] {
				work[r] += n
			}
			finished[p] = true
			remaining--
			progressed = true
		}
		if !progressed {
			return false
		}
	}
	return true
}

// fits reports whether participant p's outstanding claim can be met from work.
func (b *Bank) fits(p int, work []int) bool {
	for r, free := range work {
		if b.claim[p][r]-b.allocation[p][r] > free {
			return false
		}
	}
	return true
}

func (b *Bank) checkParticipant(p int) {
	if p < 0 || p >= len(b.claim) {
		panic(fmt.Errorf("banker: participant %d out of range [0, %d)", p, len(b.claim)))
	}
}

func (b *Bank) checkResource(r int) {
	if r < 0 || r >= len(b.available) {
		panic(fmt.Errorf("banker: resource %d out of range [0, %d)", r, len(b.available)))
	}
}
