// Package spinlock implements busy-wait mutual exclusion with the
// IRQ-disable discipline of spec.md §4.2: held implies interrupts
// disabled on the owner core, and every spinlock is exclusive (no
// concurrent readers).
package spinlock

import (
	"runtime"
	"sync/atomic"

	"github.com/go-argentum/kernel/internal/kpanic"
)

const callChainDepth = 4

// Spinlock is a lock word plus the owner core id and a short call-chain
// for the self-deadlock panic, per spec.md §3.
type Spinlock struct {
	locked    atomic.Uint32
	ownerCore atomic.Int32
	name      string
}

// New returns an unheld spinlock with a debug name used only in panic
// messages.
func New(name string) *Spinlock {
	sl := &Spinlock{name: name}
	sl.ownerCore.Store(-1)
	return sl
}

// Lock busy-waits for the lock word, recording owner core on success.
// The caller is required by spec.md §4.2 to have already raised its
// core's IRQ-save counter (sched.Core.IRQSave) before calling Lock;
// Spinlock itself only enforces the self-deadlock invariant, since it
// has no reference to the calling core's save counter. A negative core
// (a caller that holds no core) is never checked, since -1 is also the
// "no owner" value.
func (sl *Spinlock) Lock(core int) {
	if core >= 0 && sl.ownerCore.Load() == int32(core) && sl.locked.Load() == 1 {
		kpanic.Contract("spinlock: "+sl.name+": recursive acquisition on same core", callChainDepth)
	}
	backoff := 1
	for !sl.locked.CompareAndSwap(0, 1) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < 64 {
			backoff <<= 1
		}
	}
	sl.ownerCore.Store(int32(core))
}

// Unlock clears the owner record, then releases the lock word with
// release memory order.
func (sl *Spinlock) Unlock() {
	sl.ownerCore.Store(-1)
	sl.locked.Store(0)
}

// Held reports whether the lock is currently held, for assertions only.
func (sl *Spinlock) Held() bool {
	return sl.locked.Load() == 1
}

// OwnerCore returns the core id currently holding the lock, or -1.
func (sl *Spinlock) OwnerCore() int {
	return int(sl.ownerCore.Load())
}
