// Package bakery implements Lamport's bakery lock: mutual exclusion among a
// fixed number of participants, built from nothing stronger than ordered loads
// and stores. No compare-and-swap or other read-modify-write instruction is
// used.
//
// Each participant is identified by an index in [0, n). To enter, a
// participant takes a ticket one higher than every ticket it can see, then
// waits for every participant holding a smaller ticket to leave. Two
// participants may draw the same ticket when they choose concurrently; the
// lower index goes first.
//
//	lock := bakery.New(4)
//	// in participant i:
//	g := lock.Lock(i)
//	defer g.Unlock()
//
// # Memory ordering
//
// The entering flags and tickets are sync/atomic values. Go's atomics are
// sequentially consistent, which subsumes the full fences the algorithm
// requires around each of its writes: no participant can observe another's
// ticket before its entering flag, nor its cleared entering flag before its
// ticket.
//
// # Limitations
//
// Waiting participants spin; they do not sleep. If a participant stalls
// between raising its entering flag and releasing the lock, every other
// participant spins until it resumes. Tickets grow for as long as the lock is
// never idle.
package bakery

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// activeSpins is how many times a waiting participant re-checks before
// yielding its processor.
const activeSpins = 64

// slot is the per-participant state. Slots are padded so that one
// participant's writes do not invalidate the cache line others are spinning
// on.
type slot struct {
	// entering is true while the participant is choosing its ticket.
	entering atomic.Bool
	// ticket is the participant's place in line; zero means it neither holds
	// nor awaits the lock.
	ticket atomic.Uint64
	_      cpu.CacheLinePad
}

// Lock is a bakery lock for a fixed number of participants. Create it with
// New; the zero Lock has no participants.
//
// A Lock must not be copied after first use.
type Lock struct {
	slots []slot
}

// New creates a lock for n participants, numbered 0 to n-1. It panics if n is
// not positive.
func New(n int) *Lock {
	if n <= 0 {
		panic(fmt.Errorf("bakery: participant count must be positive, got %d", n))
	}
	return &Lock{slots: make([]slot, n)}
}

// Participants returns the number of participants the lock was created for.
func (l *Lock) Participants() int {
	return len(l.slots)
}

// Lock acquires the lock on behalf of participant i, spinning until every
// participant ahead of it has left. The returned Guard releases the lock.
//
// Each index must be used by at most one goroutine at a time. Lock panics if i
// is out of range, or if participant i already holds the lock.
func (l *Lock) Lock(i int) *Guard {
	if i < 0 || i >= len(l.slots) {
		panic(fmt.Errorf("bakery: participant %d out of range [0, %d)", i, len(l.slots)))
	}
	me := &l.slots[i]
	if me.ticket.Load() != 0 {
		panic(fmt.Errorf("bakery: participant %d already holds the lock", i))
	}

	// Doorway: choose a ticket larger than any in use.
	me.entering.Store(true)
	var highest uint64
	for j := range l.slots {
		if t := l.slots[j].ticket.Load(); t > highest {
			highest = t
		}
	}
	mine := highest + 1
	me.ticket.Store(mine)
	me.entering.Store(false)

	// Wait for every participant ahead in line.
	for j := range l.slots {
		if j == i {
			continue
		}
		other := &l.slots[j]
		var spins int
		// A participant still choosing may yet draw a ticket smaller than ours.
		for other.entering.Load() {
			pause(&spins)
		}
		for {
			t := other.ticket.Load()
			if t == 0 || !ahead(t, j, mine, i) {
				break
			}
			pause(&spins)
		}
	}
	return &Guard{lock: l, participant: i}
}

// Do runs f while holding the lock on behalf of participant i. The lock is
// released when f returns, including when it panics.
func (l *Lock) Do(i int, f func()) {
	g := l.Lock(i)
	defer g.Unlock()
	f()
}

// Locker returns a sync.Locker acquiring the lock on behalf of participant i.
// The Locker may only be used by one goroutine at a time.
func (l *Lock) Locker(i int) sync.Locker {
	return &locker{lock: l, participant: i}
}

// ahead reports whether ticket ta drawn by participant a goes before ticket tb
// drawn by participant b. Equal tickets are ordered by participant index.
func ahead(ta uint64, a int, tb uint64, b int) bool {
	return ta < tb || (ta == tb && a < b)
}

// pause backs off a spinning participant, yielding the processor once the
// active spins are used up so the holder can run when participants outnumber
// the CPUs.
func pause(spins *int) {
	if *spins < activeSpins {
		*spins++
		return
	}
	runtime.Gosched()
}

// Guard represents ownership of a Lock by one participant.
type Guard struct {
	lock        *Lock
	participant int
	released    bool
}

// Participant returns the index of the participant holding the lock.
func (g *Guard) Participant() int {
	return g.participant
}

// Unlock releases the lock by discarding the participant's ticket. It panics
// if the guard was already unlocked.
func (g *Guard) Unlock() {
	if g.released {
		panic(fmt.Errorf("bakery: unlock of released guard for participant %d", g.participant))
	}
	g.released = true
	g.lock.slots[g.participant].ticket.Store(0)
}

type locker struct {
	lock        *Lock
	participant int
	guard       *Guard
}

func (l *locker) Lock() {
	l.guard = l.lock.Lock(l.participant)
}

func (l *locker) Unlock() {
	if l.guard == nil {
		panic(fmt.Errorf("bakery: unlock of unlocked participant %d", l.participant))
	}
	g := l.guard
	l.guard = nil
	g.Unlock()
}
