package engine

// semaphore bounds concurrent task executions. A nil semaphore has unlimited
// slots.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(limit int) *semaphore {
	if limit <= 0 {
		return nil
	}
	return &semaphore{ch: make(chan struct{}, limit)}
}

// TryAcquire claims a slot without blocking; the scheduler loop queues the
// call instead when none is free.
func (s *semaphore) TryAcquire() bool {
	if s == nil {
		return true
	}
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *semaphore) Release() {
	if s != nil {
		<-s.ch
	}
}
