package channel

// Receiving returns the number of goroutines parked in Recv or RecvContext.
func Receiving[T any](r *Receiver[T]) int {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.notEmpty.Len()
}
