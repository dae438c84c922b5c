package semaphore

// Waiting returns the number of goroutines parked in Acquire.
func Waiting(s *Semaphore) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cond.Len()
}
