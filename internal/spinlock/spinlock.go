// Package spinlock provides a tiny CAS-based mutual exclusion lock for the
// short critical sections used by pagealloc, groupqueue and signalgraph.
// None of these sections ever call into the OS while held, so a spinlock
// avoids the futex round-trip a sync.Mutex pays under contention.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// Lock is an unfair, non-reentrant spinlock. Zero value is unlocked.
type Lock struct {
	state atomic.Bool
}

// Acquire blocks until the lock is held by the calling goroutine.
func (l *Lock) Acquire() {
	spins := 0
	for !l.state.CompareAndSwap(false, true) {
		spins++
		if spins < 32 {
			runtime.Gosched()
			continue
		}
		// back off harder under heavy contention
		for i := 0; i < spins%1024; i++ {
			runtime.Gosched()
		}
	}
}

// Release unlocks the lock. Releasing an unlocked lock is a contract
// violation and panics.
func (l *Lock) Release() {
	if !l.state.CompareAndSwap(true, false) {
		panic("spinlock: release of unlocked lock")
	}
}

// WithLock runs f while holding the lock.
func (l *Lock) WithLock(f func()) {
	l.Acquire()
	defer l.Release()
	f()
}
