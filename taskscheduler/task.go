package taskscheduler

import (
	"sync/atomic"

	"github.com/BareMetalEngine/bm-core-sub002/signalgraph"
)

// TaskBody is a single task instance's body. instanceIndex ranges over
// [0, instances) and is stable for the lifetime of one invocation.
type TaskBody func(ctx *Context, instanceIndex int)

// TaskEntry is the scheduler's per-task bookkeeping (spec §3 data
// model). One TaskEntry is pushed into a pool's groupqueue exactly
// once; repeated dispatch visits claim successive instances from it
// until all have been claimed.
type TaskEntry struct {
	group       uint64
	instances   int
	concurrency int
	scheduled   atomic.Int32
	active      atomic.Int32
	remaining   atomic.Int64
	body        TaskBody
	completion  signalgraph.Signal
	name        string
}

// Context is the per-invocation handle passed to a task body (spec
// §3: TaskContext). It lives only for the duration of one instance's
// body call.
type Context struct {
	group      uint64
	scheduler  *Scheduler
	yielder    *Yielder
	completion signalgraph.Signal // instance-done slot; emptied by Steal
	stolen     bool
}

// Group returns the GQ order this task's group was scheduled under.
func (c *Context) Group() uint64 { return c.group }

// Scheduler returns the owning scheduler, e.g. to spawn further tasks
// or read its signal graph.
func (c *Context) Scheduler() *Scheduler { return c.scheduler }

// Yielder returns this invocation's yielder, for awaiting signals
// without busy-waiting (spec §4.4 "Yielding").
func (c *Context) Yielder() *Yielder { return c.yielder }

// Steal moves the per-invocation completion signal out of the
// context: the scheduler will no longer auto-trip it when the body
// returns, and the caller becomes responsible for tripping it later
// (typically from an async completion callback). Calling Steal more
// than once returns an empty signal on the second and subsequent
// calls.
func (c *Context) Steal() signalgraph.Signal {
	if c.stolen {
		return signalgraph.Signal{}
	}
	c.stolen = true
	s := c.completion
	c.completion = signalgraph.Signal{}
	return s
}
