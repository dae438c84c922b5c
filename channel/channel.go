package channel

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notorious-go/primitives/internal/waitq"
	"github.com/notorious-go/primitives/semaphore"
	"github.com/notorious-go/primitives/trace"
)

// ErrClosed is returned by RecvContext once every Sender has been closed and
// the queue has been drained.
var ErrClosed = errors.New("channel: closed")

// Config describes a bounded channel. The zero Config is invalid; Capacity
// must be set.
type Config struct {
	// Capacity is the maximum number of values in flight. It must be positive.
	Capacity int

	// Trace contains optional callbacks invoked as values are sent and
	// received, and when the channel closes.
	Trace trace.ChannelTrace
}

// Open creates a bounded channel from the Config and returns its first Sender
// and Receiver handles. It panics if cfg.Capacity is not positive.
func Open[T any](cfg Config) (*Sender[T], *Receiver[T]) {
	if cfg.Capacity <= 0 {
		panic(fmt.Errorf("channel: capacity must be positive, got %d", cfg.Capacity))
	}
	c := &core[T]{
		capacity: cfg.Capacity,
		trace:    cfg.Trace,
		slots:    semaphore.New(cfg.Capacity),
		senders:  1,
	}
	c.notEmpty.L = &c.mu
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// New creates a bounded channel holding up to capacity values. It panics if
// capacity is not positive.
func New[T any](capacity int) (*Sender[T], *Receiver[T]) {
	return Open[T](Config{Capacity: capacity})
}

// core is the state shared by every handle of one channel.
type core[T any] struct {
	capacity int
	trace    trace.ChannelTrace

	// slots bounds the number of values in flight. Senders acquire a token
	// before enqueuing and receivers release it after dequeuing.
	slots *semaphore.Semaphore

	mu sync.Mutex
	// GUARDED_BY(mu)
	queue queue[T]
	// senders counts the open Sender handles. GUARDED_BY(mu)
	senders int
	// closed is set once senders drops to zero, and never unset. GUARDED_BY(mu)
	closed bool
	// notEmpty parks receivers until a value arrives or the channel closes.
	notEmpty waitq.Cond
}

// common must be called with c.mu held.
func (c *core[T]) common() trace.ChannelCommon {
	return trace.ChannelCommon{Capacity: c.capacity, Len: c.queue.len}
}

// Sender is a handle for sending values into a bounded channel. A Sender may
// be used from multiple goroutines, and must be closed once all of them are
// done sending.
type Sender[T any] struct {
	c      *core[T]
	closed atomic.Bool
}

// Send enqueues v, blocking while the channel is full. It panics if the handle
// has been closed.
func (s *Sender[T]) Send(v T) {
	// The background context is never done, so the send cannot fail.
	_ = s.SendContext(context.Background(), v)
}

// SendContext is like Send, but gives up waiting for a free slot when ctx is
// done, in which case it returns ctx.Err() and v is not enqueued.
func (s *Sender[T]) SendContext(ctx context.Context, v T) error {
	if s.closed.Load() {
		panic(fmt.Errorf("channel: send on closed sender"))
	}
	c := s.c
	fn := c.trace.Sent
	var start time.Time
	if fn != nil {
		start = time.Now()
	}
	if err := c.slots.AcquireContext(ctx); err != nil {
		return err
	}
	var blocked time.Duration
	if fn != nil {
		blocked = time.Since(start)
	}

	c.mu.Lock()
	c.queue.push(v)
	c.notEmpty.Signal()
	info := c.common()
	c.mu.Unlock()

	if fn != nil {
		fn(trace.ChannelSent{ChannelCommon: info, BlockTime: blocked})
	}
	return nil
}

// Clone returns a new Sender handle for the same channel. The channel stays
// open until every handle, this one and all its clones, has been closed.
func (s *Sender[T]) Clone() *Sender[T] {
	if s.closed.Load() {
		panic(fmt.Errorf("channel: clone of closed sender"))
	}
	s.c.mu.Lock()
	s.c.senders++
	s.c.mu.Unlock()
	return &Sender[T]{c: s.c}
}

// Close drops this handle. Closing the last open handle closes the channel and
// wakes every blocked receiver so it can observe the end of the stream.
//
// Close is idempotent: closing a handle more than once has no further effect.
func (s *Sender[T]) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	c := s.c
	c.mu.Lock()
	c.senders--
	if c.senders > 0 {
		c.mu.Unlock()
		return
	}
	c.closed = true
	woken := c.notEmpty.Len()
	c.notEmpty.Broadcast()
	info := c.common()
	c.mu.Unlock()

	if fn := c.trace.Closed; fn != nil {
		fn(trace.ChannelClosed{ChannelCommon: info, Receivers: woken})
	}
}

// Receiver is a handle for receiving values from a bounded channel. A Receiver
// may be used from multiple goroutines, and Clone hands out further handles;
// every value is delivered to exactly one receive call.
type Receiver[T any] struct {
	c *core[T]
}

// Recv dequeues the oldest value, blocking while the channel is empty. The
// boolean is false once every Sender has been closed and the queue is drained,
// in which case the value is the zero value of T.
func (r *Receiver[T]) Recv() (T, bool) {
	v, err := r.RecvContext(context.Background())
	return v, err == nil
}

// RecvContext is like Recv, but returns ErrClosed at the end of the stream and
// ctx.Err() if ctx is done before a value arrives.
func (r *Receiver[T]) RecvContext(ctx context.Context) (T, error) {
	var zero T
	c := r.c
	var start time.Time

	c.mu.Lock()
	if c.queue.len == 0 && !c.closed {
		start = time.Now()
	}
	for c.queue.len == 0 {
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		if err := c.notEmpty.Wait(ctx); err != nil {
			c.mu.Unlock()
			return zero, err
		}
	}
	v := c.queue.pop()
	info := c.common()
	c.mu.Unlock()
	c.slots.Release()

	if fn := c.trace.Received; fn != nil {
		var waited time.Duration
		if !start.IsZero() {
			waited = time.Since(start)
		}
		fn(trace.ChannelReceived{ChannelCommon: info, WaitTime: waited})
	}
	return v, nil
}

// TryRecv dequeues the oldest value without blocking. It returns false when
// the queue is empty, whether or not the channel is closed.
func (r *Receiver[T]) TryRecv() (T, bool) {
	var zero T
	c := r.c
	c.mu.Lock()
	if c.queue.len == 0 {
		c.mu.Unlock()
		return zero, false
	}
	v := c.queue.pop()
	info := c.common()
	c.mu.Unlock()
	c.slots.Release()

	if fn := c.trace.Received; fn != nil {
		fn(trace.ChannelReceived{ChannelCommon: info})
	}
	return v, true
}

// All returns an iterator receiving values until the end of the stream.
// Breaking out of the loop leaves any remaining values queued.
func (r *Receiver[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := r.Recv()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Clone returns another Receiver handle for the same channel.
func (r *Receiver[T]) Clone() *Receiver[T] {
	return &Receiver[T]{c: r.c}
}

// Len returns the number of values currently queued.
func (r *Receiver[T]) Len() int {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.queue.len
}

// Cap returns the capacity the channel was created with.
func (r *Receiver[T]) Cap() int {
	return r.c.capacity
}
