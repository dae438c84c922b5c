// Package trace contains the callback types used for tracing the primitives in
// this module. With tracing a user is able to pull out fine-grained runtime
// events as they happen, which is useful for gathering metrics, logging,
// contention analysis, etc...
//
// Every callback is optional and is called synchronously, from the goroutine
// that caused the event, after the primitive's internal lock is released.
// Callbacks must not call back into the primitive that emitted them.
package trace

import (
	"time"
)

////////////////////////////////////////////////////////////////////////////////

// SemaphoreTrace is passed into semaphore.Config and contains callbacks which
// are triggered as tokens are acquired and released.
type SemaphoreTrace struct {
	// Acquired is called after a token has been acquired.
	Acquired func(SemaphoreAcquired)

	// Released is called after a token has been released.
	Released func(SemaphoreReleased)
}

// SemaphoreCommon contains information which is passed into all
// Semaphore-related callbacks.
type SemaphoreCommon struct {
	// Count is the number of tokens held at the moment the trace occurs.
	Count int

	// Max is the capacity the semaphore was created with.
	Max int

	// Waiting is the number of goroutines blocked in Acquire.
	Waiting int
}

// SemaphoreAcquired is passed into the SemaphoreTrace.Acquired callback.
type SemaphoreAcquired struct {
	SemaphoreCommon

	// WaitTime is how long the caller was blocked. It is zero when a token
	// was available immediately.
	WaitTime time.Duration
}

// SemaphoreReleased is passed into the SemaphoreTrace.Released callback.
type SemaphoreReleased struct {
	SemaphoreCommon

	// Woke indicates whether the release handed a wake-up to a blocked
	// goroutine.
	Woke bool
}

////////////////////////////////////////////////////////////////////////////////

// ChannelTrace is passed into channel.Config and contains callbacks which are
// triggered as values flow through a bounded channel.
type ChannelTrace struct {
	// Sent is called after a value has been enqueued.
	Sent func(ChannelSent)

	// Received is called after a value has been dequeued.
	Received func(ChannelReceived)

	// Closed is called once, when the last Sender is closed.
	Closed func(ChannelClosed)
}

// ChannelCommon contains information which is passed into all Channel-related
// callbacks.
type ChannelCommon struct {
	// Capacity is the capacity the channel was created with.
	Capacity int

	// Len is the number of values queued at the moment the trace occurs.
	Len int
}

// ChannelSent is passed into the ChannelTrace.Sent callback.
type ChannelSent struct {
	ChannelCommon

	// BlockTime is how long the sender was held back by a full channel.
	BlockTime time.Duration
}

// ChannelReceived is passed into the ChannelTrace.Received callback.
type ChannelReceived struct {
	ChannelCommon

	// WaitTime is how long the receiver waited on an empty channel.
	WaitTime time.Duration
}

// ChannelClosed is passed into the ChannelTrace.Closed callback.
type ChannelClosed struct {
	ChannelCommon

	// Receivers is the number of receivers that were blocked and have been
	// woken to observe the end of the stream.
	Receivers int
}
