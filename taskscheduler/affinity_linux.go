//go:build linux

package taskscheduler

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinWorkerToCPU locks the calling goroutine to its own OS thread and
// pins that thread to a single CPU, round-robin by worker index.
// Grounded on the teacher's raw unix syscall usage for platform
// primitives the standard library doesn't expose (eventloop's
// poller_linux.go reaches for golang.org/x/sys/unix the same way).
func pinWorkerToCPU(workerIndex int) {
	runtime.LockOSThread()
	n := runtime.NumCPU()
	if n <= 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(workerIndex % n)
	_ = unix.SchedSetaffinity(0, &set)
}
