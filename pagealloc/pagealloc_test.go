package pagealloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	a, err := New(Config{
		MinimumPageSize: 4096,
		MaximumPageSize: 1 << 20,
		CPURead:         true,
		CPUWrite:        true,
	})
	require.NoError(t, err)
	return a
}

func TestAllocatePage_bucketSizeLaw(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	for _, size := range []int{4096, 8192, 65536, 1 << 20} {
		p, err := a.AllocatePage(size)
		require.NoError(t, err)
		assert.True(t, p.Valid())
		assert.Equal(t, size, p.Size())
		assert.GreaterOrEqual(t, p.Size(), a.MinimumPageSize())
		assert.LessOrEqual(t, p.Size(), a.MaximumPageSize())
		a.FreePage(p)
	}
}

func TestAllocatePage_rejectsNonPowerOfTwoOrOutOfRange(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	_, err := a.AllocatePage(5000)
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = a.AllocatePage(2048) // below minimum
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = a.AllocatePage(1 << 21) // above maximum
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestFreePage_roundTripsPoolSize(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	before := a.Stats().CachedCount.Load()
	p, err := a.AllocatePage(4096)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), a.Stats().LiveBytes.Load())
	a.FreePage(p)
	assert.Equal(t, int64(0), a.Stats().LiveBytes.Load())
	assert.Equal(t, before+1, a.Stats().CachedCount.Load())
}

func TestAllocatePage_reusesCachedPageBeforeOS(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p1, err := a.AllocatePage(4096)
	require.NoError(t, err)
	idx1 := p1.Index()
	a.FreePage(p1)
	require.Equal(t, int64(1), a.Stats().CachedCount.Load())

	p2, err := a.AllocatePage(4096)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Stats().CachedCount.Load())
	// reused cache entries get fresh identities; content must still be
	// usable memory of the right size.
	assert.NotEqual(t, idx1, p2.Index())
	assert.Len(t, p2.Bytes(), 4096)
	a.FreePage(p2)
}

func TestFreePage_unknownPageIsFatal(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)
	assert.Panics(t, func() {
		a.FreePage(MemoryPage{index: 999999, size: 4096, data: make([]byte, 4096)})
	})
}

func TestAllocator_concurrentAllocateFree(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 64; j++ {
				p, err := a.AllocatePage(4096)
				require.NoError(t, err)
				p.Bytes()[0] = 1
				a.FreePage(p)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), a.Stats().LiveBytes.Load())
}

func TestRetentionBudget_evictsLeastRecentlyUsedBucket(t *testing.T) {
	t.Parallel()
	a, err := New(Config{
		MinimumPageSize: 4096,
		MaximumPageSize: 16384,
		RetentionBudget: 4096, // only one small page may stay cached
		CPURead:         true,
		CPUWrite:        true,
	})
	require.NoError(t, err)

	small, err := a.AllocatePage(4096)
	require.NoError(t, err)
	a.FreePage(small) // cached: 4096 bytes cached, at budget

	big, err := a.AllocatePage(16384)
	require.NoError(t, err)
	a.FreePage(big) // pushes cache over budget; small bucket should be evicted

	assert.LessOrEqual(t, a.Stats().CachedBytes.Load(), int64(16384))
}

func TestZeroInitializePages(t *testing.T) {
	t.Parallel()
	a, err := New(Config{
		MinimumPageSize:     4096,
		MaximumPageSize:     4096,
		ZeroInitializePages: true,
		CPURead:             true,
		CPUWrite:            true,
	})
	require.NoError(t, err)

	p, err := a.AllocatePage(4096)
	require.NoError(t, err)
	p.Bytes()[100] = 0xFF
	a.FreePage(p)

	p2, err := a.AllocatePage(4096)
	require.NoError(t, err)
	assert.Equal(t, byte(0), p2.Bytes()[100])
}
