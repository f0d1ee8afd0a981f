//go:build unix

package pagealloc

import (
	"golang.org/x/sys/unix"
)

// unixMemory implements osMemory over mmap/mprotect/munmap, grounded
// on the teacher's raw-syscall usage in eventloop/poller_linux.go and
// poller_darwin.go (both reach past the standard library straight to
// golang.org/x/sys/unix for this class of low-level OS primitive).
type unixMemory struct{}

func newOSMemory() osMemory { return unixMemory{} }

func (unixMemory) HugePageThreshold() int { return 2 << 20 } // 2 MiB, typical THP size

func protFlags(p protection) int {
	f := unix.PROT_NONE
	if p.read {
		f |= unix.PROT_READ
	}
	if p.write {
		f |= unix.PROT_WRITE
	}
	if p.execute {
		f |= unix.PROT_EXEC
	}
	return f
}

func (unixMemory) Map(size int, prot protection, hugePageHint bool) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if hugePageHint {
		if data, err := unix.Mmap(-1, 0, size, protFlags(prot), flags|mapHugeFlag()); err == nil {
			return data, nil
		}
		// fall through to a normal mapping
	}
	return unix.Mmap(-1, 0, size, protFlags(prot), flags)
}

func (unixMemory) ProtectNone(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Mprotect(region, unix.PROT_NONE)
}

func (unixMemory) Restore(region []byte, prot protection) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Mprotect(region, protFlags(prot))
}

func (unixMemory) Unmap(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Munmap(region)
}
