package filereader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BareMetalEngine/bm-core-sub002/signalgraph"
	"github.com/BareMetalEngine/bm-core-sub002/taskscheduler"
)

func newTestScheduler(t *testing.T) *taskscheduler.Scheduler {
	t.Helper()
	s := taskscheduler.New(taskscheduler.Options{MainThreads: 2, NoBackgroundScheduler: true, NoAffinities: true})
	t.Cleanup(s.Shutdown)
	return s
}

func waitOrFail(t *testing.T, sg *signalgraph.Graph, sig signalgraph.Signal) {
	t.Helper()
	require.True(t, sg.WaitSpinWithTimeout(sig, 5*time.Second), "signal never finished")
}

func scheduleReadAsyncYieldTask(t *testing.T, s *taskscheduler.Scheduler, r Reader, gotOK *bool, gotN *int) signalgraph.Signal {
	t.Helper()
	size := r.Size()
	dest := make([]byte, size)
	return taskscheduler.NewBuilder(s).
		Instances(1).
		Name("read-async-yield").
		Body(func(ctx *taskscheduler.Context, idx int) {
			ok, n := ReadAsyncYield(ctx, r, AbsoluteRange{Start: 0, End: size}, dest)
			*gotOK = ok
			*gotN = n
		}).
		Schedule()
}

func TestMemoryReader_readAsyncFiresInline(t *testing.T) {
	r := NewFromBuffer([]byte("hello world"), "test-buf")
	dest := make([]byte, 5)
	var got int
	r.ReadAsync(AbsoluteRange{Start: 0, End: 5}, dest, func(n int) { got = n })
	assert.Equal(t, 5, got)
	assert.Equal(t, "hello", string(dest))
}

func TestMemoryReader_readAsyncEmptyRangeCompletesWithZero(t *testing.T) {
	r := NewFromBuffer([]byte("hello"), "test-buf")
	var got = -1
	r.ReadAsync(AbsoluteRange{Start: 2, End: 2}, nil, func(n int) { got = n })
	assert.Equal(t, 0, got)
}

func TestMemoryView_seekAndReadSync(t *testing.T) {
	r := NewFromBuffer([]byte("0123456789"), "test-buf")
	v, err := r.CreateView(AbsoluteRange{Start: 2, End: 8})
	require.NoError(t, err)
	defer v.Release()

	buf := make([]byte, 3)
	n := v.ReadSync(buf)
	assert.Equal(t, 3, n)
	assert.Equal(t, "234", string(buf))
	assert.Equal(t, uint64(5), v.Offset())

	v.Seek(8) // at end of range
	n = v.ReadSync(buf)
	assert.Equal(t, 0, n, "seek to end of range returns 0")

	v.Seek(100) // past EOF entirely
	n = v.ReadSync(buf)
	assert.Equal(t, 0, n)
}

func TestMemoryMapping_returnsExactRange(t *testing.T) {
	r := NewFromBuffer([]byte("abcdefghij"), "test-buf")
	m, err := r.CreateMapping(AbsoluteRange{Start: 3, End: 7})
	require.NoError(t, err)
	defer m.Release()
	assert.Equal(t, "defg", string(m.Bytes()))
}

// TestReaderRelease_keepsAliveWhileViewOpen is the refcount half of
// spec §3's ownership rule ("A view or mapping being alive keeps its
// parent reader alive"): releasing the reader's own initial reference
// while a view still holds one must not free the backing buffer.
func TestReaderRelease_keepsAliveWhileViewOpen(t *testing.T) {
	r := NewFromBuffer([]byte("persistent"), "test-buf")
	v, err := r.CreateView(AbsoluteRange{Start: 0, End: 10})
	require.NoError(t, err)

	r.Release() // drop the creator's reference; view's reference remains

	buf := make([]byte, 10)
	n := v.ReadSync(buf)
	assert.Equal(t, 10, n)
	assert.Equal(t, "persistent", string(buf[:n]))

	v.Release() // now the last reference drops
}

// TestReadAsyncYield_resumesAfterRead is spec §8 scenario 3: a task
// body calls read_async(task_context, range, dest) against a Reader
// backed by an in-memory buffer (whose callback fires inline); the
// task's own completion signal does not trip until the read's callback
// fires.
func TestReadAsyncYield_resumesAfterRead(t *testing.T) {
	s := newTestScheduler(t)
	r := NewFromBuffer([]byte("payload-bytes"), "test-buf")

	var gotN int
	var gotOK bool
	sig := scheduleReadAsyncYieldTask(t, s, r, &gotOK, &gotN)
	waitOrFail(t, s.Signals(), sig)

	assert.True(t, gotOK)
	assert.Equal(t, len("payload-bytes"), gotN)
}

func TestMemoryFS_copyVsMove(t *testing.T) {
	// pin stampNow so the original's creation timestamp is distinct
	// from "now" at copy/move time, making preservation observable.
	fixed := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	origStampNow := stampNow
	stampNow = func() time.Time { return fixed }
	defer func() { stampNow = origStampNow }()

	fs := NewFileSystem(WatcherOptions{})
	_, err := fs.CreateFile("/a/b/original.txt", []byte("content"))
	require.NoError(t, err)

	srcTimestamp := fixed
	stampNow = func() time.Time { return fixed.Add(time.Hour) }

	// copy: both source and destination remain readable afterward, and
	// the copy carries the source's original timestamp, not "now".
	_, err = fs.CopyFile("/a/b/original.txt", "/a/b/copy.txt")
	require.NoError(t, err)

	orig, err := fs.lookupFile("/a/b/original.txt")
	require.NoError(t, err)
	assert.False(t, orig.Deleted())
	cp, err := fs.lookupFile("/a/b/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(cp.Content()))
	assert.True(t, srcTimestamp.Equal(cp.Timestamp()), "copy must preserve source timestamp")

	// move: source becomes soft-deleted, destination holds the content
	// and the source's original timestamp (not the move's wall-clock time).
	_, err = fs.MoveFile("/a/b/original.txt", "/a/b/moved.txt")
	require.NoError(t, err)

	_, err = fs.lookupFile("/a/b/original.txt")
	assert.Error(t, err, "moved source should no longer be lookup-able")

	moved, err := fs.lookupFile("/a/b/moved.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(moved.Content()))
	assert.True(t, srcTimestamp.Equal(moved.Timestamp()), "move must preserve source timestamp")
}

func TestMemoryFS_softDeleteKeepsExistingHandleValid(t *testing.T) {
	fs := NewFileSystem(WatcherOptions{})
	f, err := fs.CreateFile("/dir/file.txt", []byte("still here"))
	require.NoError(t, err)

	require.NoError(t, fs.DeleteFile("/dir/file.txt"))

	// existing handle remains valid and readable
	assert.Equal(t, "still here", string(f.Content()))
	assert.True(t, f.Deleted())

	// but lookup / enumeration no longer surfaces it
	_, err = fs.lookupFile("/dir/file.txt")
	assert.Error(t, err)

	var seen []string
	_ = fs.EnumFiles("/dir", func(f *File) bool {
		seen = append(seen, f.Name())
		return true
	})
	assert.Empty(t, seen)
}

func TestMemoryFS_enumSkipsDeleted(t *testing.T) {
	fs := NewFileSystem(WatcherOptions{})
	_, err := fs.CreateFile("/d/keep.txt", []byte("1"))
	require.NoError(t, err)
	_, err = fs.CreateFile("/d/gone.txt", []byte("2"))
	require.NoError(t, err)
	require.NoError(t, fs.DeleteFile("/d/gone.txt"))

	var names []string
	_ = fs.EnumFiles("/d", func(f *File) bool {
		names = append(names, f.Name())
		return true
	})
	assert.Equal(t, []string{"keep.txt"}, names)
}

func TestMemoryFS_watcherReceivesAddAndRemove(t *testing.T) {
	fs := NewFileSystem(WatcherOptions{Debounce: 0, Expiry: time.Second})
	// create the directory before watching so its DirectoryAdded event
	// is not delivered ahead of the FileAdded event checked below.
	_, err := fs.CreatePath("/d")
	require.NoError(t, err)
	w := fs.Watch("/d")
	defer w.Close()

	_, err = fs.CreateFile("/d/file.txt", []byte("x"))
	require.NoError(t, err)
	ev := <-w.Events()
	assert.Equal(t, FileAdded, ev.Type)

	require.NoError(t, fs.DeleteFile("/d/file.txt"))
	ev = <-w.Events()
	assert.Equal(t, FileRemoved, ev.Type)
}

func TestMemoryFS_enumRoots(t *testing.T) {
	fs := NewFileSystem(WatcherOptions{})
	_, err := fs.CreatePath("/root-a/sub")
	require.NoError(t, err)
	_, err = fs.CreatePath("/root-b")
	require.NoError(t, err)

	var names []string
	fs.EnumRoots(func(d *Directory) bool {
		names = append(names, d.Name())
		return true
	})
	assert.ElementsMatch(t, []string{"root-a", "root-b"}, names)
}
