//go:build !linux

package hal

import "runtime"

// PinCurrentThread locks the calling goroutine to its own OS thread.
// CPU affinity pinning is a Linux-only refinement (see affinity_linux.go);
// elsewhere we rely on the host scheduler's placement.
func PinCurrentThread(cpu int) {
	runtime.LockOSThread()
}
