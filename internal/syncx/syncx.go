// Package syncx ports the source engine's semaphoreEx.h / event.h
// primitives that sync.WaitGroup/sync.Cond don't directly provide:
// a counting semaphore and an auto-reset event, both grounded on the
// channel-based wakeup idiom the teacher uses for worker parking
// (eventloop's fastWakeupCh / wakePipe in loop.go).
package syncx

// Semaphore is a counting semaphore backed by a buffered channel.
// Release does not block while the permit count stays within max;
// Acquire parks the caller until a permit is available.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore with the given number of initial
// permits available and a ceiling of max (max must be >= initial).
func NewSemaphore(initial, max int) *Semaphore {
	if max < initial {
		max = initial
	}
	s := &Semaphore{slots: make(chan struct{}, max)}
	for i := 0; i < initial; i++ {
		s.slots <- struct{}{}
	}
	return s
}

// Acquire blocks until a permit is available.
func (s *Semaphore) Acquire() {
	<-s.slots
}

// TryAcquire returns true and takes a permit if one is immediately
// available, else returns false without blocking.
func (s *Semaphore) TryAcquire() bool {
	select {
	case <-s.slots:
		return true
	default:
		return false
	}
}

// Release returns n permits to the pool. Over-releasing beyond the
// configured max blocks forever and is a programmer error, matching
// the fixed-capacity nature of the source's semaphoreEx.
func (s *Semaphore) Release(n int) {
	for i := 0; i < n; i++ {
		s.slots <- struct{}{}
	}
}

// AutoResetEvent is a single-waiter-at-a-time event: Set wakes exactly
// one pending or future Wait call, then automatically resets.
type AutoResetEvent struct {
	ch chan struct{}
}

// NewAutoResetEvent creates an unset event.
func NewAutoResetEvent() *AutoResetEvent {
	return &AutoResetEvent{ch: make(chan struct{}, 1)}
}

// Set signals the event. Non-blocking; if already set, this is a no-op
// (matches auto-reset semantics: extra Sets before a Wait coalesce).
func (e *AutoResetEvent) Set() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Set is called, then consumes the signal.
func (e *AutoResetEvent) Wait() {
	<-e.ch
}
