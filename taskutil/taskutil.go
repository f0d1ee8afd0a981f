// Package taskutil implements Task Utilities (TU, spec §4.5):
// parallel_for and parallel_for_each built atop taskscheduler. Both
// split a workload between the calling goroutine and spawned task
// instances, so the caller always participates — small workloads never
// pay task-system overhead, and mid-size workloads get one extra
// worker-equivalent for free (spec §4.5 "Property").
//
// Grounded on the teacher's microbatch package (splitting a fixed range
// of work between an inline fast path and a batched path based on
// size) for the "small input runs inline, larger input goes through the
// scheduled path" shape.
package taskutil

import (
	"github.com/BareMetalEngine/bm-core-sub002/taskscheduler"
)

// MaxConcurrency bounds the effective concurrency parallel_for and
// parallel_for_each will request from the scheduler, independent of
// what the caller asks for.
const MaxConcurrency = 64

// Range is a half-open block range [Start, End) over a workload index
// space, in units of blocks (parallel_for) or single indices
// (parallel_for_each).
type Range struct {
	Start, End int
}

// Len reports the number of indices the range spans.
func (r Range) Len() int { return r.End - r.Start }

// Block computes the sub-range body should process for a given task
// instance index, given a fixed block size, clamped to not exceed the
// overall range.
func Block(base Range, blockSize, instanceIndex int) Range {
	start := base.Start + instanceIndex*blockSize
	end := start + blockSize
	if end > base.End {
		end = base.End
	}
	if start > base.End {
		start = base.End
	}
	return Range{Start: start, End: end}
}

// ParallelFor implements spec §4.5 parallel_for: splits [0, size) into
// blocks of blockSize, runs body once per block. If size <= blockSize
// or the effective concurrency is 1, body runs once, inline, covering
// the whole range. Otherwise the range is split into a main sub-range
// (run inline by the caller) and a task sub-range (spawned as task
// instances with a concurrency cap); the caller spin-waits for the
// spawned instances after running its own share.
func ParallelFor(sched *taskscheduler.Scheduler, size, blockSize, concurrency int, body func(block Range)) {
	if size <= 0 {
		return
	}
	if blockSize <= 0 {
		blockSize = size
	}
	full := Range{Start: 0, End: size}

	c := min(concurrency, MaxConcurrency)
	if c <= 0 {
		c = 1
	}

	totalBlocks := (size + blockSize - 1) / blockSize
	if size <= blockSize || c == 1 || totalBlocks <= 1 {
		body(full)
		return
	}

	// Split totalBlocks across c workers (the caller counts as one):
	// the caller takes blocksPerWorker+remainder, the remaining
	// blocksInTaskSubrange are spawned as task instances.
	blocksPerWorker := totalBlocks / c
	remainder := totalBlocks % c
	mainBlocks := blocksPerWorker + remainder
	if mainBlocks > totalBlocks {
		mainBlocks = totalBlocks
	}
	taskBlocks := totalBlocks - mainBlocks

	if taskBlocks > 0 {
		taskConcurrency := min(c, taskBlocks)
		completion := taskscheduler.NewBuilder(sched).
			Instances(taskBlocks).
			Concurrency(taskConcurrency).
			Name("parallel_for").
			Body(func(ctx *taskscheduler.Context, idx int) {
				b := Block(full, blockSize, mainBlocks+idx)
				body(b)
			}).
			Schedule()

		for i := 0; i < mainBlocks; i++ {
			body(Block(full, blockSize, i))
		}
		sched.Signals().WaitSpinInfinite(completion)
		return
	}

	for i := 0; i < mainBlocks; i++ {
		body(Block(full, blockSize, i))
	}
}

// ParallelForEach implements spec §4.5 parallel_for_each: parallel_for
// with a fixed block size of 1, index-wise.
func ParallelForEach(sched *taskscheduler.Scheduler, size, concurrency int, body func(index int)) {
	ParallelFor(sched, size, 1, concurrency, func(b Range) {
		for i := b.Start; i < b.End; i++ {
			body(i)
		}
	})
}
