//go:build unix

package filereader

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

// osMapping memory-maps [rng.Start, rng.End) of the reader's file,
// rounding the mapping down to a page boundary (mmap requires a
// page-aligned offset) and slicing the returned region back to the
// caller's exact range, per spec §4.6 "create_mapping... on mmap-
// capable backends this maps the file region".
type osMapping struct {
	reader  *osReader
	mapping []byte // full page-aligned mmap region
	bytes   []byte // caller's exact range, a subslice of mapping
}

func newOSMapping(r *osReader, rng AbsoluteRange) (Mapping, error) {
	if rng.Empty() {
		return &osMapping{reader: r, bytes: nil}, nil
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("filereader: open %q for mapping: %w", r.path, err)
	}
	defer f.Close()

	pageSize := uint64(unix.Getpagesize())
	alignedStart := (rng.Start / pageSize) * pageSize
	offsetInMapping := rng.Start - alignedStart
	length := rng.End - alignedStart

	data, err := unix.Mmap(int(f.Fd()), int64(alignedStart), int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("filereader: mmap %q: %w", r.path, err)
	}
	return &osMapping{reader: r, mapping: data, bytes: data[offsetInMapping:]}, nil
}

func (m *osMapping) Bytes() []byte { return m.bytes }

func (m *osMapping) Release() {
	if m.mapping != nil {
		_ = unix.Munmap(m.mapping)
		m.mapping = nil
		m.bytes = nil
	}
	m.reader.Release()
}
