package sched

import (
	"sync/atomic"

	"github.com/go-argentum/kernel/internal/kpanic"
	"github.com/go-argentum/kernel/internal/ktask"
	"github.com/go-argentum/kernel/internal/spinlock"
)

const callChainDepth = 4

// Core is the CPU record of spec.md §3: the one-per-hardware-core state
// every primitive ultimately reads or mutates. Every field besides
// Current is touched only by the owning core; Current is read by other
// cores for IPI targeting, hence the atomic.Pointer.
type Core struct {
	id int

	current atomic.Pointer[ktask.Task]

	// free is posted by whichever task currently holds this core when it
	// pauses, handing the core back to the scheduler loop. See
	// scheduler.go's RunLoop and park.go.
	free chan struct{}

	isrDepth     uint32
	irqSaveDepth uint32
	irqSavedOn   bool

	ipiCount atomic.Int64

	sched *Scheduler
}

func newCore(id int, s *Scheduler) *Core {
	return &Core{id: id, free: make(chan struct{}, 1), sched: s}
}

// ID returns this core's index.
func (c *Core) ID() int { return c.id }

// Current returns the task currently running on this core, or nil.
func (c *Core) Current() *ktask.Task { return c.current.Load() }

// IRQSave is the counted interrupt-disable of spec.md §4.1: the first
// call captures the prior enabled flag and disables; nested calls only
// increment the counter.
func (c *Core) IRQSave() {
	if c.irqSaveDepth == 0 {
		c.irqSavedOn = c.sched.hal.IRQEnabled(c.id)
		c.sched.hal.IRQDisable(c.id)
	}
	c.irqSaveDepth++
}

// IRQRestore decrements the counter and, on reaching zero, re-enables
// interrupts iff the captured flag was enabled. Panics on underflow or
// if interrupts are found already enabled mid-nest (spec.md §4.1).
func (c *Core) IRQRestore() {
	if c.irqSaveDepth == 0 {
		kpanic.Contract("cpu: IRQRestore called with save counter at zero", callChainDepth)
	}
	if c.sched.hal.IRQEnabled(c.id) {
		kpanic.Contract("cpu: IRQRestore called while interrupts are already enabled", callChainDepth)
	}
	c.irqSaveDepth--
	if c.irqSaveDepth == 0 && c.irqSavedOn {
		c.sched.hal.IRQEnable(c.id)
	}
}

// Lock performs the two-step spinlock acquire of spec.md §4.2: raise the
// IRQ-save counter, then busy-wait on the lock word.
func (c *Core) Lock(sl *spinlock.Spinlock) {
	c.IRQSave()
	sl.Lock(c.id)
}

// Unlock is the mirror release: clear the lock word, then lower the
// IRQ-save counter.
func (c *Core) Unlock(sl *spinlock.Spinlock) {
	sl.Unlock()
	c.IRQRestore()
}

// EnterISR/ExitISR track IRQ-handler nesting depth, used by the
// dispatcher and the preemption check (a task is only preempted once
// ISR nesting returns to zero, spec.md §4.3).
func (c *Core) EnterISR() { c.isrDepth++ }

func (c *Core) ExitISR() {
	if c.isrDepth == 0 {
		kpanic.Contract("cpu: ExitISR with no matching EnterISR", callChainDepth)
	}
	c.isrDepth--
}

func (c *Core) InISR() bool { return c.isrDepth > 0 }

// IPICount reports how many IPIs this core has received, for the
// boundary test of spec.md §8 scenario 6.
func (c *Core) IPICount() int64 { return c.ipiCount.Load() }
