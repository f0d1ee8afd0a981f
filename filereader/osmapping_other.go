//go:build !unix

package filereader

import (
	"fmt"
	"os"
)

const mmapSupported = false

// osMapping falls back to a plain loaded buffer off Unix, mirroring
// pagealloc's non-unix osmemory fallback: no real mmap, but the same
// Mapping contract.
type osMapping struct {
	reader *osReader
	bytes  []byte
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
	buf := make([]byte, rng.Len())
	n, _ := f.ReadAt(buf, int64(rng.Start))
	return &osMapping{reader: r, bytes: buf[:n]}, nil
}

func (m *osMapping) Bytes() []byte { return m.bytes }
func (m *osMapping) Release()      { m.reader.Release() }
