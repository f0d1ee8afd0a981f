package taskscheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BareMetalEngine/bm-core-sub002/signalgraph"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(Options{MainThreads: 4, NoBackgroundScheduler: true, NoAffinities: true})
	t.Cleanup(s.Shutdown)
	return s
}

func waitOrFail(t *testing.T, sg *signalgraph.Graph, sig signalgraph.Signal) {
	t.Helper()
	require.True(t, sg.WaitSpinWithTimeout(sig, 5*time.Second), "signal never finished")
}

func TestScheduler_concurrencyCapNeverExceeded(t *testing.T) {
	cases := []struct{ instances, concurrency int }{
		{100, 1},
		{200, 2},
		{400, 4},
		{800, 8},
		{1600, 16},
	}
	for _, tc := range cases {
		var active atomic.Int32
		var maxSeen atomic.Int32
		var ran atomic.Int32
		s := newTestScheduler(t)

		sig := NewBuilder(s).
			Instances(tc.instances).
			Concurrency(tc.concurrency).
			Name("cap-test").
			Body(func(ctx *Context, idx int) {
				n := active.Add(1)
				for {
					old := maxSeen.Load()
					if n <= old || maxSeen.CompareAndSwap(old, n) {
						break
					}
				}
				active.Add(-1)
				ran.Add(1)
			}).
			Schedule()

		waitOrFail(t, s.Signals(), sig)
		s.Shutdown()

		assert.Equal(t, int32(tc.instances), ran.Load())
		assert.LessOrEqual(t, maxSeen.Load(), int32(tc.concurrency))
	}
}

func TestScheduler_waitForSingleSignal(t *testing.T) {
	s := newTestScheduler(t)
	gate := s.Signals().Create(1, "gate")

	var ran atomic.Bool
	sig := NewBuilder(s).
		Instances(1).
		WaitFor(gate).
		Body(func(ctx *Context, idx int) { ran.Store(true) }).
		Schedule()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load(), "task ran before its wait-for signal tripped")

	s.Signals().Trip(gate, 1)
	waitOrFail(t, s.Signals(), sig)
	assert.True(t, ran.Load())
}

func TestScheduler_waitForMultipleSignalsMerges(t *testing.T) {
	s := newTestScheduler(t)
	a := s.Signals().Create(1, "a")
	b := s.Signals().Create(1, "b")

	var ran atomic.Bool
	sig := NewBuilder(s).
		Instances(1).
		WaitFor(a, b).
		Body(func(ctx *Context, idx int) { ran.Store(true) }).
		Schedule()

	s.Signals().Trip(a, 1)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load(), "task ran after only one of two wait-for signals tripped")

	s.Signals().Trip(b, 1)
	waitOrFail(t, s.Signals(), sig)
	assert.True(t, ran.Load())
}

func TestScheduler_completeSignalForwards(t *testing.T) {
	s := newTestScheduler(t)
	downstream := s.Signals().Create(1, "downstream")

	sig := NewBuilder(s).
		Instances(1).
		CompleteSignal(downstream, 1).
		Body(func(ctx *Context, idx int) {}).
		Schedule()

	waitOrFail(t, s.Signals(), sig)
	waitOrFail(t, s.Signals(), downstream)
}

func TestScheduler_stealDefersCompletion(t *testing.T) {
	s := newTestScheduler(t)
	var stolenSignal signalgraph.Signal
	var stolenCh = make(chan struct{})

	sig := NewBuilder(s).
		Instances(1).
		Body(func(ctx *Context, idx int) {
			stolenSignal = ctx.Steal()
			close(stolenCh)
		}).
		Schedule()

	<-stolenCh
	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Signals().Finished(sig), "completion tripped despite being stolen")

	s.Signals().Trip(stolenSignal, 1)
	waitOrFail(t, s.Signals(), sig)
}

func TestScheduler_zeroInstancesFinishesImmediately(t *testing.T) {
	s := newTestScheduler(t)
	sig := NewBuilder(s).Instances(0).Body(func(ctx *Context, idx int) {}).Schedule()
	assert.True(t, s.Signals().Finished(sig))
}
