//go:build linux

package hal

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread locks the calling goroutine to its own OS thread and,
// on Linux, pins that thread to a single CPU so a simulated core behaves
// like a genuine single physical core rather than migrating across the
// host's Go scheduler. Best-effort: affinity failures are not fatal,
// since the simulator's correctness never depends on real placement.
func PinCurrentThread(cpu int) {
	runtime.LockOSThread()

	if cpu < 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu % runtime.NumCPU())
	_ = unix.SchedSetaffinity(0, &set)
}
