//go:build linux

package pagealloc

import "golang.org/x/sys/unix"

func mapHugeFlag() int { return unix.MAP_HUGETLB }
