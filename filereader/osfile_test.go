package filereader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BareMetalEngine/bm-core-sub002/pagealloc"
)

func newTestAllocator(t *testing.T) *pagealloc.Allocator {
	t.Helper()
	a, err := pagealloc.New(pagealloc.Config{
		MinimumPageSize: 4096,
		MaximumPageSize: 1 << 20,
	})
	require.NoError(t, err)
	return a
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOSReader_readAsyncViaDispatcher(t *testing.T) {
	path := writeTempFile(t, "the quick brown fox")
	disp := NewDispatcher()
	defer disp.Shutdown()

	r, err := NewFromFile(path, disp)
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, uint64(len("the quick brown fox")), r.Size())

	dest := make([]byte, 5)
	done := make(chan int, 1)
	r.ReadAsync(AbsoluteRange{Start: 4, End: 9}, dest, func(n int) { done <- n })
	n := <-done
	assert.Equal(t, 5, n)
	assert.Equal(t, "quick", string(dest))
}

func TestOSReader_viewSeekAndRead(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	disp := NewDispatcher()
	defer disp.Shutdown()
	r, err := NewFromFile(path, disp)
	require.NoError(t, err)
	defer r.Release()

	v, err := r.CreateView(AbsoluteRange{Start: 2, End: 8})
	require.NoError(t, err)
	defer v.Release()

	buf := make([]byte, 4)
	n := v.ReadSync(buf)
	require.Equal(t, 4, n)
	assert.Equal(t, "2345", string(buf))

	v.Seek(8)
	n = v.ReadSync(buf)
	assert.Equal(t, 0, n)
}

func TestOSReader_mapping(t *testing.T) {
	path := writeTempFile(t, "mapped-region-contents")
	disp := NewDispatcher()
	defer disp.Shutdown()
	r, err := NewFromFile(path, disp)
	require.NoError(t, err)
	defer r.Release()

	m, err := r.CreateMapping(AbsoluteRange{Start: 0, End: 13})
	require.NoError(t, err)
	defer m.Release()
	assert.Equal(t, "mapped-region", string(m.Bytes()))
}

func TestDispatcher_errorOnMissingFile(t *testing.T) {
	disp := NewDispatcher()
	defer disp.Shutdown()

	done := make(chan int, 1)
	disp.schedule(ioToken{
		path:     "/no/such/path/really",
		rng:      AbsoluteRange{Start: 0, End: 4},
		dest:     make([]byte, 4),
		callback: func(n int) { done <- n },
	})
	n := <-done
	assert.Equal(t, -1, n)
}

func TestDispatcher_shutdownDrainsRemainingAsErrors(t *testing.T) {
	path := writeTempFile(t, "abcdef")
	disp := NewDispatcher()

	results := make(chan int, 8)
	for i := 0; i < 8; i++ {
		disp.schedule(ioToken{
			path:     path,
			rng:      AbsoluteRange{Start: 0, End: 4},
			dest:     make([]byte, 4),
			callback: func(n int) { results <- n },
		})
	}
	disp.Shutdown()

	// every token is delivered exactly once, either serviced (4) or
	// drained on shutdown (-1).
	for i := 0; i < 8; i++ {
		n := <-results
		assert.True(t, n == 4 || n == -1)
	}
}

func TestLoadToBuffer_memoryBackend(t *testing.T) {
	pool := newTestAllocator(t)
	r := NewFromBuffer([]byte("some content to load"), "mem")
	buf, err := LoadToBuffer(r, pool, AbsoluteRange{Start: 0, End: uint64(len("some content"))})
	require.NoError(t, err)
	defer buf.Release()
	assert.Equal(t, "some content", string(buf.Bytes()))
}
