// Package filereader implements the File Reader (FR, spec §4.6):
// abstract async reads, synchronous views, memory mappings, and
// whole-buffer loads over two backends — an in-memory buffer and an
// OS file — plus a single-goroutine async dispatcher for the OS
// backend and an in-memory filesystem used for tests and mock depots.
//
// Grounded on the teacher's eventloop package for the "single
// dedicated goroutine drains a queue, callbacks fire on that
// goroutine" dispatcher shape (eventloop/loop.go's main tick loop) and
// on eventloop/registry.go's refcounted-handle-over-a-table idiom for
// FileReader/FileView/FileMapping lifetime management.
package filereader

import (
	"errors"
	"sync/atomic"
)

// AbsoluteRange is a half-open byte range in file-space (spec §3
// FileAbsoluteRange). Empty iff End == Start.
type AbsoluteRange struct {
	Start, End uint64
}

// Len reports the number of bytes the range spans.
func (r AbsoluteRange) Len() uint64 { return r.End - r.Start }

// Empty reports whether the range spans zero bytes.
func (r AbsoluteRange) Empty() bool { return r.End == r.Start }

// Flags describes a reader's capabilities (spec §3 FileReader.flags).
type Flags uint32

const (
	FlagMemoryBacked Flags = 1 << iota
	FlagBuffered
	FlagMMapCapable
)

// ErrOutOfRange is an exported sentinel for a range lying entirely
// outside a reader's size. No function in this package returns it:
// ReadAsync and View.ReadSync report byte counts instead.
var ErrOutOfRange = errors.New("filereader: range out of bounds")

// ReadCallback is invoked exactly once per read_async call with the
// number of bytes actually read (<= requested length), or a negative
// value on error (spec §4.6).
type ReadCallback func(bytesRead int)

// Reader is the abstract contract every backend implements (spec §4.6
// "common abstract contract"). Readers are refcounted: views and
// mappings derived from a Reader keep it alive (spec §3 "Ownership
// rules").
type Reader interface {
	// Size returns the reader's immutable byte size.
	Size() uint64
	// Info returns a debug-only description (path, buffer tag, ...).
	Info() string
	// Flags reports this reader's capability flags.
	Flags() Flags

	// ReadAsync starts an asynchronous read of range into dest. dest
	// must remain valid until callback fires; the reader retains no
	// ownership of it. callback runs exactly once.
	ReadAsync(r AbsoluteRange, dest []byte, callback ReadCallback)

	// CreateView returns a seek/read handle over range.
	CreateView(r AbsoluteRange) (View, error)
	// CreateMapping returns a pointer to range's bytes, either by
	// memory-mapping (OS backend) or by referencing the existing
	// buffer (memory backend).
	CreateMapping(r AbsoluteRange) (Mapping, error)

	// Retain increments the reader's reference count.
	Retain()
	// Release decrements the reference count, releasing backing
	// resources when it reaches zero.
	Release()
}

// View is a seek/read handle over an absolute sub-range of a file
// (spec §4.6 "View semantics").
type View interface {
	// Range returns the view's absolute sub-range.
	Range() AbsoluteRange
	// Offset returns the current absolute read offset, which may lie
	// outside Range (reads then return 0).
	Offset() uint64
	// Seek sets the current absolute offset.
	Seek(offset uint64)
	// ReadSync reads up to len(dest) bytes starting at the current
	// offset, advances the offset by the number of bytes read, and
	// returns that count. Zero indicates end-of-range or a seek
	// beyond range.
	ReadSync(dest []byte) int
	// Release drops this view's reference on its parent reader.
	Release()
}

// Mapping exposes a pointer to bytes in a fixed range, valid for the
// mapping's entire lifetime (spec §3 FileMapping).
type Mapping interface {
	// Bytes returns the mapped range's bytes. Valid until Release.
	Bytes() []byte
	// Release drops this mapping's reference on its parent reader,
	// unmapping OS-backed mappings when the last reference drops.
	Release()
}

// refcount is an embeddable atomic reference counter, grounded on the
// teacher's eventloop/registry.go "last reference releases resources"
// pattern.
type refcount struct {
	n atomic.Int32
}

func (r *refcount) init(initial int32)  { r.n.Store(initial) }
func (r *refcount) retain()             { r.n.Add(1) }
func (r *refcount) release() (last bool) { return r.n.Add(-1) == 0 }
