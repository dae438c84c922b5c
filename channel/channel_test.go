package channel_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mediocregopher/mediocre-go-lib/mrand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/notorious-go/primitives/channel"
	"github.com/notorious-go/primitives/trace"
)

// receiving blocks until n goroutines are parked receiving from rx.
func receiving[T any](t *testing.T, rx *channel.Receiver[T], n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return channel.Receiving(rx) == n
	}, time.Second, time.Millisecond)
}

func TestNew(t *testing.T) {
	tx, rx := channel.New[int](4)
	defer tx.Close()
	assert.Equal(t, 0, rx.Len())
	assert.Equal(t, 4, rx.Cap())
	_, ok := rx.TryRecv()
	assert.False(t, ok)

	for _, capacity := range []int{0, -3} {
		assert.Panics(t, func() { channel.New[int](capacity) }, "capacity=%d", capacity)
	}
}

func TestFIFO(t *testing.T) {
	const k = 1000
	tx, rx := channel.New[int](4)
	go func() {
		defer tx.Close()
		for i := range k {
			tx.Send(i)
		}
	}()

	var got []int
	for v := range rx.All() {
		got = append(got, v)
	}
	require.Len(t, got, k)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

// TestConservation sends distinct values from several senders to several
// receivers and checks that every value arrives exactly once.
func TestConservation(t *testing.T) {
	const (
		senders   = 4
		receivers = 3
		perSender = 500
	)
	capacity := 1 + mrand.Intn(8)
	t.Logf("capacity %d", capacity)

	tx, rx := channel.New[int](capacity)
	var producers errgroup.Group
	for id := range senders {
		handle := tx.Clone()
		producers.Go(func() error {
			defer handle.Close()
			for i := range perSender {
				handle.Send(id*perSender + i)
			}
			return nil
		})
	}
	tx.Close()

	var (
		mu       sync.Mutex
		received []int
	)
	var consumers errgroup.Group
	for range receivers {
		handle := rx.Clone()
		consumers.Go(func() error {
			var mine []int
			for v := range handle.All() {
				mine = append(mine, v)
			}
			mu.Lock()
			received = append(received, mine...)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, producers.Wait())
	require.NoError(t, consumers.Wait())

	slices.Sort(received)
	want := make([]int, senders*perSender)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, received)
	assert.Equal(t, 0, rx.Len())
}

// TestSenderOrder checks that a single receiver observes each sender's values
// in the order that sender sent them.
func TestSenderOrder(t *testing.T) {
	const (
		senders   = 3
		perSender = 300
	)
	tx, rx := channel.New[[2]int](2)
	for id := range senders {
		handle := tx.Clone()
		go func() {
			defer handle.Close()
			for i := range perSender {
				handle.Send([2]int{id, i})
			}
		}()
	}
	tx.Close()

	next := make([]int, senders)
	for v := range rx.All() {
		id, seq := v[0], v[1]
		require.Equal(t, next[id], seq, "sender %d out of order", id)
		next[id]++
	}
	for id, n := range next {
		assert.Equal(t, perSender, n, "sender %d", id)
	}
}

func TestBackpressure(t *testing.T) {
	tx, rx := channel.New[int](1)
	defer tx.Close()

	// The first send has a free slot.
	tx.Send(10)

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		tx.Send(20)
	}()
	select {
	case <-sent:
		t.Fatal("second Send did not block on a full channel")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := rx.Recv()
	require.True(t, ok)
	assert.Equal(t, 10, v)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("second Send was not unblocked by Recv")
	}
	v, ok = rx.Recv()
	require.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestClose(t *testing.T) {
	t.Run("wakes blocked receivers", func(t *testing.T) {
		tx, rx := channel.New[string](2)
		clone := tx.Clone()

		var ended atomic.Int32
		var g errgroup.Group
		for range 3 {
			g.Go(func() error {
				_, err := rx.RecvContext(t.Context())
				ended.Add(1)
				if !errors.Is(err, channel.ErrClosed) {
					return fmt.Errorf("RecvContext returned %v, want ErrClosed", err)
				}
				return nil
			})
		}

		receiving(t, rx, 3)
		tx.Close()
		// One handle is still open, so the receivers stay parked.
		assert.Equal(t, 3, channel.Receiving(rx))
		assert.Zero(t, ended.Load())
		clone.Close()
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(3), ended.Load())
	})

	t.Run("drains before ending", func(t *testing.T) {
		tx, rx := channel.New[string](2)
		tx.Send("a")
		tx.Send("b")
		tx.Close()

		v, ok := rx.Recv()
		assert.True(t, ok)
		assert.Equal(t, "a", v)
		v, err := rx.RecvContext(t.Context())
		assert.NoError(t, err)
		assert.Equal(t, "b", v)

		v, ok = rx.Recv()
		assert.False(t, ok)
		assert.Empty(t, v)
		_, err = rx.RecvContext(t.Context())
		assert.ErrorIs(t, err, channel.ErrClosed)
	})

	t.Run("idempotent", func(t *testing.T) {
		var closed int
		tx, rx := channel.Open[int](channel.Config{
			Capacity: 1,
			Trace: trace.ChannelTrace{
				Closed: func(trace.ChannelClosed) { closed++ },
			},
		})
		clone := tx.Clone()
		tx.Close()
		tx.Close()
		_, ok := rx.TryRecv()
		assert.False(t, ok)
		assert.Equal(t, 0, closed, "closing one handle twice must not close the channel")

		clone.Close()
		assert.Equal(t, 1, closed)
		_, ok = rx.Recv()
		assert.False(t, ok)
	})

	t.Run("send after close panics", func(t *testing.T) {
		tx, _ := channel.New[int](1)
		tx.Close()
		assert.PanicsWithError(t, "channel: send on closed sender", func() { tx.Send(1) })
		assert.Panics(t, func() { tx.Clone() })
	})
}

func TestContext(t *testing.T) {
	t.Run("send", func(t *testing.T) {
		tx, rx := channel.New[int](1)
		defer tx.Close()
		tx.Send(1)

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, tx.SendContext(ctx, 2), context.DeadlineExceeded)
		assert.Equal(t, 1, rx.Len())

		v, ok := rx.TryRecv()
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		_, ok = rx.TryRecv()
		assert.False(t, ok, "a cancelled send must not enqueue")

		// The slot freed by the receive is usable again.
		assert.NoError(t, tx.SendContext(t.Context(), 3))
	})

	t.Run("recv", func(t *testing.T) {
		tx, rx := channel.New[int](1)
		defer tx.Close()

		ctx, cancel := context.WithCancel(t.Context())
		errs := make(chan error, 1)
		go func() {
			_, err := rx.RecvContext(ctx)
			errs <- err
		}()
		receiving(t, rx, 1)
		cancel()
		assert.ErrorIs(t, <-errs, context.Canceled)
		assert.Zero(t, channel.Receiving(rx), "a cancelled receiver must leave the queue")

		// The value sent afterwards stays for the next receiver.
		tx.Send(7)
		v, ok := rx.Recv()
		assert.True(t, ok)
		assert.Equal(t, 7, v)
	})
}

// TestCancelledReceivers runs receivers that give up at random while values
// flow, and checks that every value is still received exactly once and that
// no wake-up is lost to a receiver that already left.
func TestCancelledReceivers(t *testing.T) {
	const (
		rounds    = 50
		receivers = 4
		values    = 200
		timeouts  = 32
	)
	for round := range rounds {
		// mrand is used from this goroutine only.
		patience := make([][]time.Duration, receivers)
		for i := range patience {
			patience[i] = make([]time.Duration, timeouts)
			for j := range patience[i] {
				patience[i][j] = time.Duration(mrand.Intn(200)) * time.Microsecond
			}
		}
		capacity := 1 + mrand.Intn(4)

		tx, rx := channel.New[int](capacity)
		got := make([][]int, receivers)
		var g errgroup.Group
		for id := range receivers {
			handle := rx.Clone()
			g.Go(func() error {
				for attempt := 0; ; attempt++ {
					ctx, cancel := context.WithTimeout(t.Context(), patience[id][attempt%timeouts])
					v, err := handle.RecvContext(ctx)
					cancel()
					switch {
					case err == nil:
						got[id] = append(got[id], v)
					case errors.Is(err, channel.ErrClosed):
						return nil
					case errors.Is(err, context.DeadlineExceeded):
					default:
						return err
					}
				}
			})
		}
		for i := range values {
			tx.Send(i)
		}
		tx.Close()
		require.NoError(t, g.Wait(), "round %d", round)

		var all []int
		for _, mine := range got {
			all = append(all, mine...)
		}
		slices.Sort(all)
		require.Len(t, all, values, "round %d", round)
		for i, v := range all {
			require.Equal(t, i, v, "round %d", round)
		}
		require.Zero(t, rx.Len(), "round %d", round)
	}
}

func TestTraceBlockTime(t *testing.T) {
	blocked := make(chan time.Duration, 2)
	tx, rx := channel.Open[int](channel.Config{
		Capacity: 1,
		Trace: trace.ChannelTrace{
			Sent: func(ev trace.ChannelSent) { blocked <- ev.BlockTime },
		},
	})
	defer tx.Close()

	tx.Send(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tx.Send(2)
	}()
	time.Sleep(10 * time.Millisecond)
	_, _ = rx.Recv()
	<-done

	<-blocked
	assert.Positive(t, <-blocked, "the second send waited for a free slot")
}

func TestTrace(t *testing.T) {
	var (
		mu       sync.Mutex
		sent     []trace.ChannelSent
		received []trace.ChannelReceived
		closed   []trace.ChannelClosed
	)
	tx, rx := channel.Open[int](channel.Config{
		Capacity: 2,
		Trace: trace.ChannelTrace{
			Sent: func(ev trace.ChannelSent) {
				t.Logf("sent: %+v", ev)
				mu.Lock()
				sent = append(sent, ev)
				mu.Unlock()
			},
			Received: func(ev trace.ChannelReceived) {
				t.Logf("received: %+v", ev)
				mu.Lock()
				received = append(received, ev)
				mu.Unlock()
			},
			Closed: func(ev trace.ChannelClosed) {
				t.Logf("closed: %+v", ev)
				mu.Lock()
				closed = append(closed, ev)
				mu.Unlock()
			},
		},
	})

	tx.Send(1)
	tx.Send(2)
	_, _ = rx.Recv()
	_, _ = rx.Recv()
	tx.Close()
	_, ok := rx.Recv()
	require.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	require.Len(t, received, 2)
	require.Len(t, closed, 1)

	assert.Equal(t, trace.ChannelCommon{Capacity: 2, Len: 1}, sent[0].ChannelCommon)
	assert.Equal(t, trace.ChannelCommon{Capacity: 2, Len: 2}, sent[1].ChannelCommon)
	assert.Equal(t, trace.ChannelCommon{Capacity: 2, Len: 1}, received[0].ChannelCommon)
	assert.Zero(t, received[0].WaitTime)
	assert.Equal(t, trace.ChannelCommon{Capacity: 2, Len: 0}, closed[0].ChannelCommon)
	assert.Equal(t, 0, closed[0].Receivers)
}
