// Package pagealloc implements the paged system-memory allocator
// (spec §4.1): power-of-two virtual-memory pages handed out from
// OS-level allocations, with a per-bucket FILO free cache so
// most-recently-used pages stay warm. It is the layer the rest of the
// core (filereader's load buffers) draws large contiguous buffers from.
//
// Grounded on the teacher's eventloop FD/registry bookkeeping pattern
// (one table guarded by a lock, plus per-entity metadata) and on the
// paged-file cache idiom in the retrieval pack's
// Fantom-foundation/Carmen pagedFile (an in-memory page cache in front
// of OS-backed storage, recycled via a pool rather than reallocated).
package pagealloc

import (
	"errors"
	"math/bits"
	"sync/atomic"

	"github.com/BareMetalEngine/bm-core-sub002/corelog"
	"github.com/BareMetalEngine/bm-core-sub002/internal/spinlock"
)

// Errors returned by Allocator methods. These are ordinary result
// values per spec §7 ("PA...report failures as distinguishable result
// values"); only an unknown page passed to Free is a ContractViolation
// and panics via corelog.Logger.Fatal.
var (
	ErrInvalidPageSize = errors.New("pagealloc: size must be a power of two within [min, max]")
	ErrOutOfMemory     = errors.New("pagealloc: OS allocation failed")
)

// Config configures an Allocator. Min and Max must be powers of two.
type Config struct {
	MinimumPageSize      int
	MaximumPageSize      int
	ProtectReleasedPages bool
	ZeroInitializePages  bool
	// RetentionBudget caps total cached (not-live) bytes across all
	// buckets; 0 means unlimited. When a Free would push the cache
	// over budget, the least-recently-used bucket's oldest cached
	// pages are evicted (unmapped) first.
	RetentionBudget int64

	CPURead    bool
	CPUWrite   bool
	CPUExecute bool
	GPURead    bool
	GPUWrite   bool

	Log *corelog.Logger
}

// MemoryPage is an opaque handle to a power-of-two block of virtual
// memory. The zero value is the "empty page" spec §4.1 returns on OOM.
type MemoryPage struct {
	index  uint32
	bucket int
	size   int
	data   []byte
}

// Valid reports whether the page has a backing allocation.
func (p MemoryPage) Valid() bool { return p.data != nil }

// Index is the page's unique, monotonically-assigned identity.
func (p MemoryPage) Index() uint32 { return p.index }

// Size is the page's size in bytes, a power of two.
func (p MemoryPage) Size() int { return p.size }

// Bytes exposes the page's backing memory. Do not retain slices from
// this beyond the page's lifetime with the allocator: Free may unmap
// or protect-none the underlying pages.
func (p MemoryPage) Bytes() []byte { return p.data }

type liveEntry struct {
	bucket int
	data   []byte
}

type cachedPage struct {
	data []byte
}

type bucket struct {
	lock     spinlock.Lock
	size     int
	free     []cachedPage // stack; back of slice is top (FILO)
	lastUsed int64        // monotonic counter, bumped on push/pop, for LRU eviction
}

// Stats exposes atomically-updated allocation counters.
type Stats struct {
	LiveBytes   atomic.Int64
	CachedBytes atomic.Int64
	CachedCount atomic.Int64
}

// Allocator hands out and recycles power-of-two pages per Config.
type Allocator struct {
	cfg       Config
	minLog2   int
	maxLog2   int
	buckets   []*bucket
	liveLock  spinlock.Lock
	live      map[uint32]liveEntry
	nextIndex atomic.Uint32
	useClock  atomic.Int64
	stats     Stats
	log       *corelog.Logger
	os        osMemory
}

// New creates an Allocator. Both MinimumPageSize and MaximumPageSize
// must be powers of two, with Minimum <= Maximum.
func New(cfg Config) (*Allocator, error) {
	if !isPowerOfTwo(cfg.MinimumPageSize) || !isPowerOfTwo(cfg.MaximumPageSize) {
		return nil, ErrInvalidPageSize
	}
	if cfg.MinimumPageSize > cfg.MaximumPageSize {
		return nil, ErrInvalidPageSize
	}
	log := cfg.Log
	if log == nil {
		log = corelog.Disabled()
	}
	minLog2 := bits.TrailingZeros(uint(cfg.MinimumPageSize))
	maxLog2 := bits.TrailingZeros(uint(cfg.MaximumPageSize))
	bucketCount := maxLog2 - minLog2 + 1
	a := &Allocator{
		cfg:     cfg,
		minLog2: minLog2,
		maxLog2: maxLog2,
		buckets: make([]*bucket, bucketCount),
		live:    make(map[uint32]liveEntry),
		log:     log,
		os:      newOSMemory(),
	}
	for i := range a.buckets {
		a.buckets[i] = &bucket{size: cfg.MinimumPageSize << uint(i)}
	}
	log.Info("pagealloc: initialized min=%d max=%d buckets=%d", cfg.MinimumPageSize, cfg.MaximumPageSize, bucketCount)
	return a, nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

func (a *Allocator) MinimumPageSize() int { return a.cfg.MinimumPageSize }
func (a *Allocator) MaximumPageSize() int { return a.cfg.MaximumPageSize }

// Stats returns the allocator's live stats counters.
func (a *Allocator) Stats() *Stats { return &a.stats }

func (a *Allocator) bucketIndex(size int) (int, bool) {
	if !isPowerOfTwo(size) {
		return 0, false
	}
	lg := bits.TrailingZeros(uint(size))
	if lg < a.minLog2 || lg > a.maxLog2 {
		return 0, false
	}
	return lg - a.minLog2, true
}

func (a *Allocator) protectionFlags() protection {
	return protection{
		read:    a.cfg.CPURead || (!a.cfg.CPURead && !a.cfg.CPUWrite && !a.cfg.CPUExecute),
		write:   a.cfg.CPUWrite,
		execute: a.cfg.CPUExecute,
	}
}

// AllocatePage returns a page of exactly size bytes, satisfying the PA
// bucket size law (spec §8): size == 2^(min_log2+bucket_index) and
// min <= size <= max.
func (a *Allocator) AllocatePage(size int) (MemoryPage, error) {
	bi, ok := a.bucketIndex(size)
	if !ok {
		return MemoryPage{}, ErrInvalidPageSize
	}
	b := a.buckets[bi]

	// fast path: per-bucket cache hit, no OS call.
	b.lock.Acquire()
	var cached []byte
	if n := len(b.free); n > 0 {
		cached = b.free[n-1].data
		b.free = b.free[:n-1]
		b.lastUsed = a.useClock.Add(1)
		a.stats.CachedBytes.Add(-int64(size))
		a.stats.CachedCount.Add(-1)
	}
	b.lock.Release()

	var data []byte
	if cached != nil {
		if a.cfg.ProtectReleasedPages {
			if err := a.os.Restore(cached, a.protectionFlags()); err != nil {
				a.log.Warning("pagealloc: restore protection failed: %v", err)
			}
		}
		data = cached
	} else {
		hint := size >= a.os.HugePageThreshold()
		var err error
		data, err = a.os.Map(size, a.protectionFlags(), hint)
		if err != nil {
			a.log.Warning("pagealloc: OS allocation of %d bytes failed: %v", size, err)
			return MemoryPage{}, ErrOutOfMemory
		}
	}

	if a.cfg.ZeroInitializePages {
		for i := range data {
			data[i] = 0
		}
	}

	index := a.nextIndex.Add(1)
	a.liveLock.Acquire()
	a.live[index] = liveEntry{bucket: bi, data: data}
	a.liveLock.Release()

	a.stats.LiveBytes.Add(int64(size))

	return MemoryPage{index: index, bucket: bi, size: size, data: data}, nil
}

// FreePage returns page to the allocator. Freeing an index that
// AllocatePage did not hand out (or that was already freed) is a
// contract violation and is fatal.
func (a *Allocator) FreePage(page MemoryPage) {
	a.liveLock.Acquire()
	entry, ok := a.live[page.index]
	if ok {
		delete(a.live, page.index)
	}
	a.liveLock.Release()
	if !ok {
		a.log.Fatal("pagealloc: free of unknown page index=%d", page.index)
		return
	}

	a.stats.LiveBytes.Add(-int64(len(entry.data)))
	b := a.buckets[entry.bucket]

	overBudget := a.cfg.RetentionBudget > 0 && a.stats.CachedBytes.Load()+int64(len(entry.data)) > a.cfg.RetentionBudget
	if overBudget {
		a.evictForBudget(int64(len(entry.data)))
	}
	overBudget = a.cfg.RetentionBudget > 0 && a.stats.CachedBytes.Load()+int64(len(entry.data)) > a.cfg.RetentionBudget
	if overBudget {
		// still over budget even after eviction: unmap this page directly.
		if a.cfg.ProtectReleasedPages {
			_ = a.os.ProtectNone(entry.data)
		}
		if err := a.os.Unmap(entry.data); err != nil {
			a.log.Warning("pagealloc: unmap failed: %v", err)
		}
		return
	}

	if a.cfg.ProtectReleasedPages {
		if err := a.os.ProtectNone(entry.data); err != nil {
			a.log.Warning("pagealloc: protect-none failed: %v", err)
		}
	}
	b.lock.Acquire()
	b.free = append(b.free, cachedPage{data: entry.data})
	b.lastUsed = a.useClock.Add(1)
	b.lock.Release()
	a.stats.CachedBytes.Add(int64(len(entry.data)))
	a.stats.CachedCount.Add(1)
}

// evictForBudget unmaps cached pages, starting with the
// least-recently-used bucket, until incoming would fit within budget
// or nothing more can be evicted.
func (a *Allocator) evictForBudget(incoming int64) {
	for {
		if a.stats.CachedBytes.Load()+incoming <= a.cfg.RetentionBudget {
			return
		}
		var victim *bucket
		var victimUse int64 = 1<<63 - 1
		for _, b := range a.buckets {
			b.lock.Acquire()
			if len(b.free) > 0 && b.lastUsed < victimUse {
				victim = b
				victimUse = b.lastUsed
			}
			b.lock.Release()
		}
		if victim == nil {
			return // nothing left to evict
		}
		victim.lock.Acquire()
		if len(victim.free) == 0 {
			victim.lock.Release()
			continue
		}
		// FILO cache, but eviction removes the oldest entry (front) to
		// preserve warmth of the most-recently-freed pages.
		ev := victim.free[0]
		victim.free = victim.free[1:]
		victim.lock.Release()
		a.stats.CachedBytes.Add(-int64(victim.size))
		a.stats.CachedCount.Add(-1)
		if a.cfg.ProtectReleasedPages {
			_ = a.os.ProtectNone(ev.data)
		}
		if err := a.os.Unmap(ev.data); err != nil {
			a.log.Warning("pagealloc: eviction unmap failed: %v", err)
		}
	}
}
