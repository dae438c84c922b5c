// Package channel provides a bounded, multi-producer multi-consumer FIFO
// channel assembled from a counting semaphore, a mutex-protected linked queue
// and a wait queue for receivers.
//
// # Usage
//
//	tx, rx := channel.New[int](4)
//	go func() {
//	    defer tx.Close()
//	    for i := range 10 {
//	        tx.Send(i)
//	    }
//	}()
//	for v := range rx.All() {
//	    fmt.Println(v)
//	}
//
// # Backpressure
//
// Every Send first acquires a token from a semaphore whose capacity equals the
// channel's capacity, and every Recv releases one after dequeuing. A burst of
// capacity sends therefore proceeds without blocking, and the next one blocks
// until a receiver frees a slot. Senders set no pace of their own; receivers
// do.
//
// # Ordering
//
// Values sent by a single Sender are received in the order they were sent.
// Values from different senders interleave in the order the senders reached
// the queue. Every value sent is received exactly once.
//
// # Closing
//
// Go has no destructors, so a Sender handle is dropped explicitly with Close.
// Clone creates additional handles. Once every handle is closed the channel is
// closed: receivers drain what is still queued and then observe the end of the
// stream, as (zero, false) from Recv or ErrClosed from RecvContext. Sending
// through a closed handle panics, like sending on a closed Go channel.
//
// # Cancellation
//
// SendContext and RecvContext give up when their context is done. A cancelled
// SendContext enqueues nothing, and a cancelled RecvContext dequeues nothing.
package channel
