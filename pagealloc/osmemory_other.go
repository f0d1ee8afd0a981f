//go:build !unix

package pagealloc

import "errors"

// otherMemory is the portable fallback for platforms without a unix
// mmap surface (e.g. windows, where the source engine instead uses
// VirtualAlloc — see asyncDispatcherWinApi.h in original_source/, not
// ported here since this module targets the unix syscall surface the
// rest of the retrieval pack exercises). It allocates plain Go slices:
// correct for every PA invariant except true OS-level protect/unmap,
// which become no-ops.
type otherMemory struct{}

func newOSMemory() osMemory { return otherMemory{} }

func (otherMemory) HugePageThreshold() int { return 2 << 20 }

func (otherMemory) Map(size int, _ protection, _ bool) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("pagealloc: invalid size")
	}
	return make([]byte, size), nil
}

func (otherMemory) ProtectNone(_ []byte) error { return nil }

func (otherMemory) Restore(_ []byte, _ protection) error { return nil }

func (otherMemory) Unmap(_ []byte) error { return nil }
