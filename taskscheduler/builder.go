package taskscheduler

import (
	"time"

	"github.com/BareMetalEngine/bm-core-sub002/internal/scopetime"
	"github.com/BareMetalEngine/bm-core-sub002/signalgraph"
)

// slowTaskThreshold is the elapsed task-body duration past which
// runInstance logs a warning, per the source engine's scopeTimingBlock
// use in its job system.
const slowTaskThreshold = 50 * time.Millisecond

type completionTarget struct {
	signal signalgraph.Signal
	count  int64
}

// Builder assembles a task entry before scheduling it, mirroring the
// source engine's TaskBuilder (spec §3, §4.4). The zero value is not
// usable; use NewBuilder.
type Builder struct {
	sched        *Scheduler
	pool         PoolKind
	group        uint64
	instances    int
	concurrency  int
	name         string
	waitFor      []signalgraph.Signal
	completeSigs []completionTarget
	body         TaskBody
}

// NewBuilder starts building a single-instance, concurrency-1 task on
// the main pool.
func NewBuilder(s *Scheduler) *Builder {
	return &Builder{sched: s, pool: PoolMain, instances: 1, concurrency: 1}
}

// OnBackground schedules the task on the background pool instead of
// main (falls back to main if the background pool is disabled).
func (b *Builder) OnBackground() *Builder { b.pool = PoolBackground; return b }

// Group sets the GQ order instances are dispatched under; tasks
// sharing a group/order execute in FIFO push order across workers
// (spec §5).
func (b *Builder) Group(order uint64) *Builder { b.group = order; return b }

// Instances sets how many times body is invoked (once per instance
// index in [0, n)).
func (b *Builder) Instances(n int) *Builder { b.instances = n; return b }

// Concurrency caps how many instances may run simultaneously.
func (b *Builder) Concurrency(c int) *Builder { b.concurrency = c; return b }

// Name sets a debug name, used for the task's internal signals.
func (b *Builder) Name(name string) *Builder { b.name = name; return b }

// WaitFor delays scheduling until every given signal has finished. One
// signal is awaited directly via a completion callback; more than one
// are merged first (spec §4.4 "Signals-dependencies wiring").
func (b *Builder) WaitFor(signals ...signalgraph.Signal) *Builder {
	b.waitFor = append(b.waitFor, signals...)
	return b
}

// CompleteSignal adds a forwarding link so that, when this task
// finishes, sig is tripped by count.
func (b *Builder) CompleteSignal(sig signalgraph.Signal, count int64) *Builder {
	b.completeSigs = append(b.completeSigs, completionTarget{signal: sig, count: count})
	return b
}

// Body sets the task's per-instance body function.
func (b *Builder) Body(f TaskBody) *Builder { b.body = f; return b }

// Schedule finalizes the task and returns its completion signal, which
// trips once every instance has finished (and, for stolen
// per-instance signals, once the stealer has tripped them).
func (b *Builder) Schedule() signalgraph.Signal {
	sched := b.sched
	if sched.shutdown.Load() {
		sched.log.Fatal("taskscheduler: Schedule called after Shutdown")
		return signalgraph.Signal{}
	}
	if b.instances <= 0 {
		return sched.signals.Create(0, b.name)
	}
	if b.concurrency <= 0 {
		b.concurrency = b.instances
	}

	// runInstance trips completion by 1, once, when the last instance
	// retires, so it is created with a count of 1.
	completion := sched.signals.Create(1, b.name)
	for _, ct := range b.completeSigs {
		sched.signals.RegisterCompletionSignal(completion, ct.signal, ct.count)
	}

	te := &TaskEntry{
		group:       b.group,
		instances:   b.instances,
		concurrency: b.concurrency,
		body:        b.body,
		completion:  completion,
		name:        b.name,
	}

	p := sched.poolFor(b.pool)
	pushNow := func() { p.push(te, b.group) }

	switch len(b.waitFor) {
	case 0:
		pushNow()
	case 1:
		sched.signals.RegisterCompletionCallback(b.waitFor[0], pushNow)
	default:
		merged := sched.signals.Merge(b.waitFor, 0, b.name+".wait")
		sched.signals.RegisterCompletionCallback(merged, pushNow)
	}

	return completion
}

// runInstance executes one claimed instance's body and performs the
// state-machine bookkeeping from spec §4.4: running -> retiring ->
// final.
func (s *Scheduler) runInstance(p *pool, te *TaskEntry, instanceIndex int) {
	instanceDone := s.signals.Create(1, te.name+".instance")
	s.signals.RegisterCompletionCallback(instanceDone, func() {
		remaining := te.remaining.Add(-1)
		if remaining < 0 {
			remaining = te.remaining.Swap(0)
		}
		te.active.Add(-1)
		p.notifySlotFreed()
		if remaining == 0 {
			s.signals.Trip(te.completion, 1)
		}
	})
	// seed remaining on first use: spec's remaining counts down from
	// instances to 0, independent of dispatch order, so initialize it
	// lazily the first time any instance starts running.
	te.remaining.CompareAndSwap(0, int64(te.instances))

	ctx := &Context{group: te.group, scheduler: s, completion: instanceDone}
	ctx.yielder = s.acquireYielder()

	stop := scopetime.StartIfSlow(slowTaskThreshold, func(d time.Duration) {
		s.log.Warning("taskscheduler: slow task %q instance %d took %s", te.name, instanceIndex, d)
	})
	te.body(ctx, instanceIndex) // unrecovered panics abort the process, per spec §4.4
	stop()

	s.releaseYielder(ctx.yielder)
	if !ctx.stolen {
		s.signals.Trip(ctx.completion, 1)
	}
}
