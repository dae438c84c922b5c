// Package semaphore provides a counting semaphore built on the monitor
// pattern: a mutex-protected counter paired with a queue of parked goroutines.
//
// # Why This Package Exists
//
// A buffered channel is the usual Go semaphore, and for most code it is the
// right choice. This package exists for the cases where the semaphore's state
// must be observed and reasoned about explicitly: the number of holders is a
// plain counter guarded by a mutex, waiting happens in an explicit wait loop,
// and each release wakes exactly one waiter. The bounded channel in this
// module is built on top of it.
//
// # Behaviour
//
//   - Acquire parks the calling goroutine while the count is at capacity. It
//     never spins.
//   - Release decrements the count and wakes one waiter. Waking more would be
//     wasteful, as one release admits exactly one more holder.
//   - AcquireContext gives up when its context is done, leaving no token held.
//   - TryAcquire never blocks.
//
// # Misuse
//
// New panics when the capacity is not positive. Release panics when no token
// is held, since a negative count would silently admit more holders than the
// capacity allows. Both are programming errors rather than conditions to
// recover from.
//
// # When NOT to Use This Package
//
//   - Weighted semaphores (acquiring multiple tokens at once): Use golang.org/x/sync/semaphore
//   - Limiting a group of goroutines: Use golang.org/x/sync/errgroup with SetLimit
//   - Strict FIFO ordering guarantees: TryAcquire and fresh Acquire calls may
//     barge ahead of goroutines that are already waiting
//
// # Tracing
//
// A Semaphore created from a Config with a trace.SemaphoreTrace reports every
// acquisition and release to the configured callbacks.
package semaphore
