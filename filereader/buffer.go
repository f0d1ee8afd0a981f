package filereader

import (
	"fmt"

	"github.com/BareMetalEngine/bm-core-sub002/pagealloc"
)

// Buffer is a page allocated from a pagealloc.Allocator and filled
// from a Reader (spec §4.6 "load_to_buffer(pool, range) → Buffer |
// OOM"). The backing page is rounded up to the allocator's next
// power-of-two size; Bytes() returns exactly the requested range's
// length, a subslice of the page.
type Buffer struct {
	pool  *pagealloc.Allocator
	page  pagealloc.MemoryPage
	bytes []byte
}

// Bytes returns the loaded range's bytes.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Release returns the backing page to its allocator.
func (b *Buffer) Release() {
	if b.page.Valid() {
		b.pool.FreePage(b.page)
		b.page = pagealloc.MemoryPage{}
		b.bytes = nil
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// LoadToBuffer implements spec §4.6 "load_to_buffer": allocates a page
// from pool sized to the requested range (rounded up to the
// allocator's granularity), then fills it — via a memory mapping when
// the reader is mmap-capable, otherwise via a synchronous read.
func LoadToBuffer(r Reader, pool *pagealloc.Allocator, rng AbsoluteRange) (*Buffer, error) {
	size := nextPowerOfTwo(int(rng.Len()))
	if size < pool.MinimumPageSize() {
		size = pool.MinimumPageSize()
	}
	page, err := pool.AllocatePage(size)
	if err != nil {
		return nil, fmt.Errorf("filereader: load_to_buffer: %w", err)
	}

	n := int(rng.Len())
	dest := page.Bytes()[:n]

	if r.Flags()&FlagMMapCapable != 0 {
		m, err := r.CreateMapping(rng)
		if err == nil {
			copy(dest, m.Bytes())
			m.Release()
			return &Buffer{pool: pool, page: page, bytes: dest}, nil
		}
		// fall through to a synchronous read if mapping failed
	}

	done := make(chan int, 1)
	r.ReadAsync(rng, dest, func(read int) { done <- read })
	read := <-done
	if read < 0 {
		pool.FreePage(page)
		return nil, fmt.Errorf("filereader: load_to_buffer: read failed")
	}
	return &Buffer{pool: pool, page: page, bytes: dest[:read]}, nil
}
