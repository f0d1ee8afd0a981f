//go:build !linux

package taskscheduler

// pinWorkerToCPU is a no-op off Linux: there is no portable affinity
// syscall surface in golang.org/x/sys/unix for darwin, and Windows'
// equivalent (SetThreadAffinityMask, used by the source engine's
// windows-specific code under original_source/) is out of scope for
// this port's unix-first syscall surface.
func pinWorkerToCPU(workerIndex int) {}
