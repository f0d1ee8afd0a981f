// Package signalgraph implements the Signal Graph (SG, spec §4.3): a
// process-wide table of reference-counted synchronization signals that
// support completion callbacks, signal-to-signal forwarding for fan-in
// merges, and cooperative waits. The task scheduler trips signals to
// release waiting tasks; the file reader trips a temporary signal to
// resume a task awaiting an async read.
//
// Grounded on the teacher's eventloop registry (internal/lockpool here
// plays the role eventloop/registry.go's free-list-over-a-slice plays
// for promise IDs) for the slot table, and on catrate's per-category
// atomic counter + mutex-guarded side-list split (limiter.go:
// categoryData keeps a hot atomic path and a mutex-guarded ring buffer)
// for the "atomic counter, locked side-lists" split spec.md §4.3 and §5
// require.
package signalgraph

import (
	"sync/atomic"
	"time"

	"github.com/BareMetalEngine/bm-core-sub002/corelog"
	"github.com/BareMetalEngine/bm-core-sub002/internal/lockpool"
	"github.com/BareMetalEngine/bm-core-sub002/internal/spinlock"
)

// MaxSignals bounds the slot table, matching spec §4.3's "capacity ≈
// 65,536".
const MaxSignals = 65536

// Signal is a 64-bit-handle-equivalent (slot, generation) pair. The
// zero value is the "empty handle", which is always Finished per
// spec §4.3.
type Signal struct {
	slot       uint32
	generation uint32
}

// IsEmpty reports whether s is the zero-value empty handle.
func (s Signal) IsEmpty() bool { return s.generation == 0 }

type forwardLink struct {
	target Signal
	count  int64
}

type slotState struct {
	lock       spinlock.Lock
	generation atomic.Uint32 // 0 means "no live signal in this slot"
	genSeq     uint32        // lock-protected; monotonic, never yields 0
	counter    atomic.Int64
	callbacks  []func()
	forwards   []forwardLink
	name       string
}

// nextGeneration must be called with lock held.
func (st *slotState) nextGeneration() uint32 {
	st.genSeq++
	if st.genSeq == 0 {
		st.genSeq = 1
	}
	return st.genSeq
}

// Graph is the process-wide signal table. The zero value is not
// usable; call New.
type Graph struct {
	pool  *lockpool.Pool
	slots []slotState
	log   *corelog.Logger
}

// New creates a Graph with room for MaxSignals concurrently-live
// signals.
func New(log *corelog.Logger) *Graph {
	if log == nil {
		log = corelog.Disabled()
	}
	return &Graph{
		pool:  lockpool.New(MaxSignals),
		slots: make([]slotState, MaxSignals),
		log:   log,
	}
}

// Create allocates a signal with the given initial counter and debug
// name. If count <= 0 the signal is created already finished.
func (g *Graph) Create(count int64, name string) Signal {
	idx, ok := g.pool.Acquire()
	if !ok {
		g.log.Fatal("signalgraph: slot pool exhausted (capacity=%d)", MaxSignals)
		return Signal{}
	}
	st := &g.slots[idx]
	st.lock.Acquire()
	gen := st.nextGeneration()
	st.generation.Store(gen)
	st.counter.Store(count)
	st.callbacks = nil
	st.forwards = nil
	st.name = name
	st.lock.Release()

	sig := Signal{slot: idx, generation: gen}
	if count <= 0 {
		g.finalize(idx, gen)
	}
	return sig
}

// Finished reports whether s's generation no longer matches its slot's
// current generation, which is also true for the empty handle.
func (g *Graph) Finished(s Signal) bool {
	if s.IsEmpty() {
		return true
	}
	return g.slots[s.slot].generation.Load() != s.generation
}

// Trip subtracts n from signal's counter. Tripping a signal whose
// handle no longer matches a live slot (already finished, or never
// valid) is a contract violation and is fatal, per spec §7.
func (g *Graph) Trip(s Signal, n int64) {
	if s.IsEmpty() {
		g.log.Fatal("signalgraph: trip of empty signal handle")
		return
	}
	st := &g.slots[s.slot]
	if st.generation.Load() != s.generation {
		g.log.Fatal("signalgraph: trip of dead signal slot=%d", s.slot)
		return
	}
	newVal := st.counter.Add(-n)
	if newVal > 0 {
		return
	}
	if newVal < 0 {
		g.log.Warning("signalgraph: signal %q over-tripped by %d", st.name, -newVal)
	}
	g.finalize(s.slot, s.generation)
}

// finalize runs callbacks, fires forwarding links, resets the slot's
// generation to 0, and returns the slot to the pool. Must only be
// called once per (slot, generation) pair — by construction, the
// atomic Add in Trip (or the count<=0 check in Create) that observes
// the transition to <= 0 is the only caller for a given generation.
func (g *Graph) finalize(idx uint32, generation uint32) {
	st := &g.slots[idx]
	st.lock.Acquire()
	callbacks := st.callbacks
	forwards := st.forwards
	st.callbacks = nil
	st.forwards = nil
	st.generation.Store(0)
	st.lock.Release()

	// LIFO order of registration, per spec §5 ordering guarantees.
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i]()
	}
	// depth-first: this signal's callbacks run before its forwarding
	// edges fire the next trip.
	for _, fl := range forwards {
		g.Trip(fl.target, fl.count)
	}

	g.pool.Release(idx)
}

// RegisterCompletionCallback attaches f to s. If s is already
// finished, f runs immediately, inline, on the calling goroutine.
// Otherwise f may later run on whichever goroutine trips s.
func (g *Graph) RegisterCompletionCallback(s Signal, f func()) {
	if s.IsEmpty() {
		f()
		return
	}
	st := &g.slots[s.slot]
	st.lock.Acquire()
	if st.generation.Load() != s.generation {
		st.lock.Release()
		f()
		return
	}
	st.callbacks = append(st.callbacks, f)
	st.lock.Release()
}

// RegisterCompletionSignal adds a forwarding link from s to other: when
// s trips, other is tripped by n. If s is already finished, other is
// tripped by n immediately.
func (g *Graph) RegisterCompletionSignal(s Signal, other Signal, n int64) {
	if s.IsEmpty() {
		g.Trip(other, n)
		return
	}
	st := &g.slots[s.slot]
	st.lock.Acquire()
	if st.generation.Load() != s.generation {
		st.lock.Release()
		g.Trip(other, n)
		return
	}
	st.forwards = append(st.forwards, forwardLink{target: other, count: n})
	st.lock.Release()
}

// Merge creates a new signal that trips once every input in signals
// has tripped and extra additional trips have occurred against it;
// equivalent to creating a signal of count len(signals)+extra and
// forwarding-linking every input to it (spec §4.3, §8 round-trip
// property).
func (g *Graph) Merge(signals []Signal, extra int64, name string) Signal {
	out := g.Create(int64(len(signals))+extra, name)
	for _, s := range signals {
		g.RegisterCompletionSignal(s, out, 1)
	}
	return out
}

// WaitSpinInfinite busy-waits until s finishes.
func (g *Graph) WaitSpinInfinite(s Signal) {
	for !g.Finished(s) {
		spinPause()
	}
}

// WaitSpinWithTimeout busy-waits until s finishes or the timeout
// elapses, returning whether it finished in time.
func (g *Graph) WaitSpinWithTimeout(s Signal, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !g.Finished(s) {
		if time.Now().After(deadline) {
			return g.Finished(s)
		}
		spinPause()
	}
	return true
}

// Yielder is the worker-thread-local capability that parks a task on a
// signal, releasing the worker (by blocking it on an event) until the
// signal trips — spec §4.4/§9. Defined here (rather than imported from
// taskscheduler) to avoid a dependency cycle: taskscheduler depends on
// signalgraph, not the reverse.
type Yielder interface {
	// ParkUntil blocks the caller. register is invoked synchronously,
	// exactly once, with a wake function; the implementation must
	// arrange for wake to eventually be called (e.g. as a signal
	// completion callback) to release the park.
	ParkUntil(register func(wake func()))
}

// WaitWithYield parks the calling worker via y until s finishes,
// without busy-waiting.
func (g *Graph) WaitWithYield(s Signal, y Yielder) {
	if g.Finished(s) {
		return
	}
	y.ParkUntil(func(wake func()) {
		g.RegisterCompletionCallback(s, wake)
	})
}
