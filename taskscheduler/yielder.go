package taskscheduler

import "github.com/BareMetalEngine/bm-core-sub002/internal/syncx"

// Yielder is the worker-thread-local capability a task's Context
// exposes for awaiting a signal without busy-waiting (spec §4.4, §9:
// "yielder.yield_and_wait(signal) must... block it on an event").
// Pooled in the Scheduler (a sync.Pool taken per task instance) to
// avoid allocating an AutoResetEvent per task.
type Yielder struct {
	event *syncx.AutoResetEvent
}

// ParkUntil implements signalgraph.Yielder: it blocks the calling
// goroutine (which, in this port, IS the worker — see spec §9's note
// that either releasing the worker or blocking it on an event is
// acceptable, and Go's lack of green threads makes blocking the
// natural choice) until register's wake function is invoked.
//
// Because the worker goroutine is blocked here, it does not return to
// its pool's dispatch loop until woken — matching spec §4.4's
// documented limitation that yielded tasks do not free worker threads
// for unrelated work.
func (y *Yielder) ParkUntil(register func(wake func())) {
	register(func() { y.event.Set() })
	y.event.Wait()
}
