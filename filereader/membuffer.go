package filereader

import "sync"

// memoryReader is the memory-backed Reader (spec §4.6 "memory-backed"
// backend): wraps an existing buffer, serves reads by copying directly
// out of it with no I/O involved.
type memoryReader struct {
	refcount
	mu   sync.RWMutex
	data []byte
	info string
}

// NewFromBuffer creates a memory-backed Reader over buf. buf is not
// copied; callers must not mutate it while the reader is alive unless
// they intend readers to observe the mutation.
func NewFromBuffer(buf []byte, info string) Reader {
	r := &memoryReader{data: buf, info: info}
	r.refcount.init(1)
	return r
}

func (r *memoryReader) Size() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.data))
}

func (r *memoryReader) Info() string { return r.info }
func (r *memoryReader) Flags() Flags { return FlagMemoryBacked | FlagMMapCapable }

func (r *memoryReader) ReadAsync(rng AbsoluteRange, dest []byte, callback ReadCallback) {
	// Memory backend has no real I/O; the callback fires inline, which
	// satisfies "empty range completes the callback inline with 0"
	// and is a valid synchronous specialization of the async contract
	// for a backend with no actual asynchrony.
	n := r.readAt(rng, dest)
	callback(n)
}

func (r *memoryReader) readAt(rng AbsoluteRange, dest []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rng.Start >= uint64(len(r.data)) {
		return 0
	}
	end := rng.End
	if end > uint64(len(r.data)) {
		end = uint64(len(r.data))
	}
	if end <= rng.Start {
		return 0
	}
	n := copy(dest, r.data[rng.Start:end])
	return n
}

func (r *memoryReader) CreateView(rng AbsoluteRange) (View, error) {
	r.Retain()
	return &memoryView{reader: r, rng: rng, offset: rng.Start}, nil
}

func (r *memoryReader) CreateMapping(rng AbsoluteRange) (Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	end := rng.End
	if end > uint64(len(r.data)) {
		end = uint64(len(r.data))
	}
	start := rng.Start
	if start > end {
		start = end
	}
	r.Retain()
	return &memoryMapping{reader: r, bytes: r.data[start:end]}, nil
}

func (r *memoryReader) Retain() { r.refcount.retain() }
func (r *memoryReader) Release() {
	if r.refcount.release() {
		r.mu.Lock()
		r.data = nil
		r.mu.Unlock()
	}
}

type memoryView struct {
	reader *memoryReader
	rng    AbsoluteRange
	offset uint64
}

func (v *memoryView) Range() AbsoluteRange { return v.rng }
func (v *memoryView) Offset() uint64       { return v.offset }
func (v *memoryView) Seek(offset uint64)   { v.offset = offset }

func (v *memoryView) ReadSync(dest []byte) int {
	if v.offset < v.rng.Start || v.offset >= v.rng.End {
		return 0
	}
	remaining := v.rng.End - v.offset
	want := uint64(len(dest))
	if want > remaining {
		want = remaining
	}
	n := v.reader.readAt(AbsoluteRange{Start: v.offset, End: v.offset + want}, dest[:want])
	v.offset += uint64(n)
	return n
}

func (v *memoryView) Release() { v.reader.Release() }

type memoryMapping struct {
	reader *memoryReader
	bytes  []byte
}

func (m *memoryMapping) Bytes() []byte { return m.bytes }
func (m *memoryMapping) Release()      { m.reader.Release() }
