package filereader

import (
	"fmt"
	"os"
)

// handlePoolSize bounds the small free list of reusable read handles
// each osReader keeps for its Views (spec §4.6 "bounded pooling... to
// avoid seek contention").
const handlePoolSize = 4

// osReader is the OS-file-backed Reader (spec §4.6 "Real-OS backend").
// Async reads are forwarded to a dispatcher; synchronous views pull a
// pooled *os.File to avoid contending on a single shared seek offset.
type osReader struct {
	refcount
	path       string
	size       uint64
	dispatcher *Dispatcher
	mmapable   bool

	handles chan *os.File // bounded free list, lazily populated
}

// NewFromFile opens path and returns an OS-backed Reader. disp is the
// async dispatcher used for ReadAsync; if nil, a process-wide default
// dispatcher is used (created lazily, started once).
func NewFromFile(path string, disp *Dispatcher) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filereader: open %q: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("filereader: stat %q: %w", path, err)
	}
	if disp == nil {
		disp = defaultDispatcher()
	}
	r := &osReader{
		path:       path,
		size:       uint64(info.Size()),
		dispatcher: disp,
		mmapable:   mmapSupported,
		handles:    make(chan *os.File, handlePoolSize),
	}
	r.refcount.init(1)
	return r, nil
}

func (r *osReader) Size() uint64 { return r.size }
func (r *osReader) Info() string { return r.path }
func (r *osReader) Flags() Flags {
	f := FlagBuffered
	if r.mmapable {
		f |= FlagMMapCapable
	}
	return f
}

func (r *osReader) ReadAsync(rng AbsoluteRange, dest []byte, callback ReadCallback) {
	if rng.Empty() {
		callback(0)
		return
	}
	r.dispatcher.schedule(ioToken{
		path:     r.path,
		rng:      rng,
		dest:     dest,
		callback: callback,
	})
}

func (r *osReader) acquireHandle() (*os.File, error) {
	select {
	case f := <-r.handles:
		return f, nil
	default:
		return os.Open(r.path)
	}
}

func (r *osReader) releaseHandle(f *os.File) {
	select {
	case r.handles <- f:
	default:
		f.Close()
	}
}

func (r *osReader) CreateView(rng AbsoluteRange) (View, error) {
	r.Retain()
	return &osView{reader: r, rng: rng, offset: rng.Start}, nil
}

func (r *osReader) CreateMapping(rng AbsoluteRange) (Mapping, error) {
	r.Retain()
	m, err := newOSMapping(r, rng)
	if err != nil {
		r.Release()
		return nil, err
	}
	return m, nil
}

func (r *osReader) Retain() { r.refcount.retain() }
func (r *osReader) Release() {
	if r.refcount.release() {
		close(r.handles)
		for f := range r.handles {
			f.Close()
		}
	}
}

type osView struct {
	reader *osReader
	rng    AbsoluteRange
	offset uint64
}

func (v *osView) Range() AbsoluteRange { return v.rng }
func (v *osView) Offset() uint64       { return v.offset }
func (v *osView) Seek(offset uint64)   { v.offset = offset }

func (v *osView) ReadSync(dest []byte) int {
	if v.offset < v.rng.Start || v.offset >= v.rng.End {
		return 0
	}
	remaining := v.rng.End - v.offset
	want := uint64(len(dest))
	if want > remaining {
		want = remaining
	}
	dest = dest[:want]

	f, err := v.reader.acquireHandle()
	if err != nil {
		return 0
	}
	n, _ := f.ReadAt(dest, int64(v.offset))
	v.reader.releaseHandle(f)
	if n < 0 {
		n = 0
	}
	v.offset += uint64(n)
	return n
}

func (v *osView) Release() { v.reader.Release() }
