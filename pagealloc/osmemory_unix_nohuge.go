//go:build unix && !linux

package pagealloc

// mapHugeFlag is 0 on BSD/Darwin: there is no MAP_HUGETLB-equivalent
// mmap flag exposed by golang.org/x/sys/unix, so the huge-page hint
// silently degrades to a normal mapping, matching spec §4.1's
// "with fallback to normal pages".
func mapHugeFlag() int { return 0 }
