package taskutil

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BareMetalEngine/bm-core-sub002/taskscheduler"
)

func newTestScheduler(t *testing.T) *taskscheduler.Scheduler {
	t.Helper()
	s := taskscheduler.New(taskscheduler.Options{MainThreads: 4, NoBackgroundScheduler: true, NoAffinities: true})
	t.Cleanup(s.Shutdown)
	return s
}

// TestParallelFor_coverageLaw is spec §8 scenario 6: after
// parallel_for(0..1000, block=64, concurrency=4, body=acc[i]+=1), every
// entry in acc[0..1000) equals 1 and nothing outside the range is
// touched.
func TestParallelFor_coverageLaw(t *testing.T) {
	s := newTestScheduler(t)
	const size = 1000
	acc := make([]int32, size+64) // padding to detect out-of-range writes

	ParallelFor(s, size, 64, 4, func(b Range) {
		for i := b.Start; i < b.End; i++ {
			atomic.AddInt32(&acc[i], 1)
		}
	})

	for i := 0; i < size; i++ {
		require.Equalf(t, int32(1), acc[i], "index %d not covered exactly once", i)
	}
	for i := size; i < len(acc); i++ {
		assert.Equalf(t, int32(0), acc[i], "index %d touched outside range", i)
	}
}

func TestParallelFor_smallRangeRunsInline(t *testing.T) {
	s := newTestScheduler(t)
	var calls int32
	ParallelFor(s, 10, 64, 4, func(b Range) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, Range{0, 10}, b)
	})
	assert.Equal(t, int32(1), calls)
}

func TestParallelFor_concurrencyOneRunsInline(t *testing.T) {
	s := newTestScheduler(t)
	var calls int32
	ParallelFor(s, 1000, 10, 1, func(b Range) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, Range{0, 1000}, b)
	})
	assert.Equal(t, int32(1), calls)
}

func TestParallelForEach_coversEveryIndexOnce(t *testing.T) {
	s := newTestScheduler(t)
	const size = 777
	acc := make([]int32, size)

	ParallelForEach(s, size, 8, func(i int) {
		atomic.AddInt32(&acc[i], 1)
	})

	for i, v := range acc {
		require.Equalf(t, int32(1), v, "index %d not covered exactly once", i)
	}
}

func TestParallelFor_zeroSizeNoOp(t *testing.T) {
	s := newTestScheduler(t)
	called := false
	ParallelFor(s, 0, 10, 4, func(b Range) { called = true })
	assert.False(t, called)
}
