package taskscheduler

import (
	"sync"
	"sync/atomic"

	"github.com/BareMetalEngine/bm-core-sub002/corelog"
	"github.com/BareMetalEngine/bm-core-sub002/groupqueue"
	"github.com/BareMetalEngine/bm-core-sub002/internal/syncx"
)

// pool is one named worker pool (main or background), dispatched
// through its own groupqueue.Queue per spec §4.4.
type pool struct {
	name         string
	queue        *groupqueue.Queue
	idleSem      *syncx.Semaphore
	workerCount  int
	affinityPin  bool
	shuttingDown atomic.Bool
	wg           sync.WaitGroup
	log          *corelog.Logger
}

func newPool(name string, workerCount int, affinityPin bool, log *corelog.Logger) *pool {
	p := &pool{
		name:        name,
		queue:       groupqueue.New(),
		idleSem:     syncx.NewSemaphore(0, 1<<20),
		workerCount: workerCount,
		affinityPin: affinityPin,
		log:         log,
	}
	return p
}

// start launches the pool's worker goroutines. run is invoked with the
// claimed *TaskEntry and instance index whenever dispatch succeeds.
func (p *pool) start(run func(te *TaskEntry, instanceIndex int)) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.workerLoop(i, run)
	}
}

func (p *pool) push(te *TaskEntry, order uint64) {
	p.queue.Push(te, order)
	p.idleSem.Release(1)
}

// notifySlotFreed wakes one idle worker after an instance finishes,
// since that may have freed concurrency headroom on the same or a
// different task entry.
func (p *pool) notifySlotFreed() {
	p.idleSem.Release(1)
}

func (p *pool) workerLoop(workerIndex int, run func(te *TaskEntry, instanceIndex int)) {
	defer p.wg.Done()
	if p.affinityPin {
		pinWorkerToCPU(workerIndex)
	}
	for {
		var claimed *TaskEntry
		var instanceIdx int
		found := p.queue.Peek(func(payload any) groupqueue.PeekAction {
			te := payload.(*TaskEntry)
			active := te.active.Load()
			if active >= int32(te.concurrency) {
				return groupqueue.PeekContinue
			}
			idx := te.scheduled.Add(1) - 1
			te.active.Add(1)
			claimed = te
			instanceIdx = int(idx)
			if int(idx) == te.instances-1 {
				return groupqueue.PeekRemove
			}
			return groupqueue.PeekKeep
		})
		if !found {
			if p.shuttingDown.Load() && p.queue.Len() == 0 {
				return
			}
			p.idleSem.Acquire()
			continue
		}
		run(claimed, instanceIdx)
	}
}

func (p *pool) shutdown() {
	p.shuttingDown.Store(true)
	// wake every worker that might be parked on the idle semaphore;
	// workers still draining real work re-check shuttingDown and the
	// queue length before exiting, so this is safe even if some of
	// these releases are "spurious" wakeups of a busy worker.
	p.idleSem.Release(p.workerCount)
	p.wg.Wait()
}
