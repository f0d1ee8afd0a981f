// Package taskscheduler implements the Task Scheduler (TS, spec §4.4):
// a multi-threaded worker pool dispatched through groupqueue, with
// per-task instancing, concurrency caps, optional affinity pinning,
// and signal-driven dependencies wired through signalgraph.
//
// Grounded on the teacher's eventloop worker-loop shape (a goroutine
// that repeatedly drains a queue and parks when empty, see loop.go's
// main tick loop and ChunkedIngress) and on the retrieval pack's
// SuperCoolPencil-surge internal/engine/concurrent worker and
// TheEntropyCollective-noisefs pkg/common/workers pool for the
// "N persistent goroutine workers draining a shared queue, with a
// semaphore/condition to avoid busy-polling when idle" shape.
package taskscheduler

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/BareMetalEngine/bm-core-sub002/corecfg"
	"github.com/BareMetalEngine/bm-core-sub002/corelog"
	"github.com/BareMetalEngine/bm-core-sub002/groupqueue"
	"github.com/BareMetalEngine/bm-core-sub002/internal/syncx"
	"github.com/BareMetalEngine/bm-core-sub002/signalgraph"
)

var maxprocsOnce sync.Once

func ensureMaxProcsApplied(log *corelog.Logger) {
	maxprocsOnce.Do(func() {
		// automaxprocs lowers GOMAXPROCS to match a cgroup CPU quota;
		// without this, "half of hardware concurrency" over-reports
		// headroom on a throttled container and oversubscribes it.
		_, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			log.Info(format, args...)
		}))
		if err != nil {
			log.Warning("taskscheduler: automaxprocs.Set failed: %v", err)
		}
	})
}

// PoolKind selects which named pool a task is scheduled on.
type PoolKind int

const (
	PoolMain PoolKind = iota
	PoolBackground
)

// Options configures a Scheduler.
type Options struct {
	MainThreads           int
	BackgroundThreads     int
	NoAffinities          bool
	NoBackgroundScheduler bool
	Log                   *corelog.Logger
	Signals               *signalgraph.Graph
}

// FromCommandLine binds Options from the ambient CommandLine
// collaborator per spec §6: taskThreads, taskNoAffinities,
// taskNoBackgroundScheduler, taskBackgroundThreads.
func FromCommandLine(cl corecfg.CommandLine, sg *signalgraph.Graph, log *corelog.Logger) Options {
	if log == nil {
		log = corelog.Disabled()
	}
	ensureMaxProcsApplied(log)
	cpus := runtime.GOMAXPROCS(0)
	return Options{
		MainThreads:           corecfg.Int(cl, "taskThreads", max(1, cpus/2)),
		BackgroundThreads:     corecfg.Int(cl, "taskBackgroundThreads", max(1, cpus/4)),
		NoAffinities:          corecfg.Bool(cl, "taskNoAffinities", false),
		NoBackgroundScheduler: corecfg.Bool(cl, "taskNoBackgroundScheduler", false),
		Log:                   log,
		Signals:               sg,
	}
}

// Scheduler owns the main and (optional) background worker pools.
type Scheduler struct {
	Main       *pool
	Background *pool // nil if Options.NoBackgroundScheduler
	signals    *signalgraph.Graph
	log        *corelog.Logger
	shutdown   atomic.Bool
	yielders   sync.Pool
}

// New creates and starts a Scheduler's worker goroutines.
func New(opts Options) *Scheduler {
	log := opts.Log
	if log == nil {
		log = corelog.Disabled()
	}
	sg := opts.Signals
	if sg == nil {
		sg = signalgraph.New(log)
	}
	s := &Scheduler{signals: sg, log: log}
	s.yielders.New = func() any { return &Yielder{event: syncx.NewAutoResetEvent()} }

	mainThreads := opts.MainThreads
	if mainThreads <= 0 {
		mainThreads = 1
	}
	s.Main = newPool("main", mainThreads, !opts.NoAffinities, log)
	s.Main.start(func(te *TaskEntry, idx int) { s.runInstance(s.Main, te, idx) })

	if !opts.NoBackgroundScheduler {
		bgThreads := opts.BackgroundThreads
		if bgThreads <= 0 {
			bgThreads = 1
		}
		s.Background = newPool("background", bgThreads, false, log)
		s.Background.start(func(te *TaskEntry, idx int) { s.runInstance(s.Background, te, idx) })
	}

	log.Info("taskscheduler: started main=%d background=%v", mainThreads, s.Background != nil)
	return s
}

// Signals returns the signal graph this scheduler trips task
// completions through.
func (s *Scheduler) Signals() *signalgraph.Graph { return s.signals }

func (s *Scheduler) poolFor(kind PoolKind) *pool {
	if kind == PoolBackground {
		if s.Background != nil {
			return s.Background
		}
		s.log.Warning("taskscheduler: background scheduler disabled, falling back to main pool")
	}
	return s.Main
}

func (s *Scheduler) acquireYielder() *Yielder { return s.yielders.Get().(*Yielder) }
func (s *Scheduler) releaseYielder(y *Yielder) { s.yielders.Put(y) }

// Shutdown stops accepting new scheduling requests and blocks until
// every worker has drained the queue and exited. Calling Schedule
// after Shutdown has been called is a contract violation.
func (s *Scheduler) Shutdown() {
	s.shutdown.Store(true)
	s.Main.shutdown()
	if s.Background != nil {
		s.Background.shutdown()
	}
}
