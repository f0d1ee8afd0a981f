package pagealloc

// protection mirrors the CPU access bits from Config; GPU bits carry no
// OS-level meaning on any of the target platforms and are tracked only
// for API parity with the source engine's GPU-visible allocations.
type protection struct {
	read    bool
	write   bool
	execute bool
}

// osMemory abstracts the platform-specific virtual-memory syscalls PA
// needs: mapping a fresh region, restoring/removing CPU access to a
// cached region, and returning a region to the OS. Isolated behind an
// interface per spec §9 ("Platform I/O... isolate in one module").
type osMemory interface {
	// Map allocates size bytes with the given protection. hugePageHint
	// requests large-page backing when the platform supports it,
	// falling back transparently to normal pages.
	Map(size int, prot protection, hugePageHint bool) ([]byte, error)
	// ProtectNone removes all CPU access to a cached (not-live) region.
	ProtectNone(region []byte) error
	// Restore reinstates prot access after a prior ProtectNone.
	Restore(region []byte, prot protection) error
	// Unmap releases region back to the OS.
	Unmap(region []byte) error
	// HugePageThreshold is the size, in bytes, at or above which Map
	// attempts the huge-page hint.
	HugePageThreshold() int
}
