// Package sched implements the ready queue and scheduler of spec.md
// §4.3: a fixed small number of priorities, one FIFO per priority under
// a single scheduler spinlock, picking the highest non-empty priority
// and dequeuing its head. The "arch context switch" (spec.md §9) is a
// permit-channel handoff between a task's goroutine and its owning
// core's dedicated scheduler goroutine, the same adaptation the
// teacher's threads-backend scheduler (task_threads.go's pause
// semaphore) uses in place of a raw register/stack swap.
package sched

import (
	"github.com/go-argentum/kernel/internal/ktask"
	"github.com/go-argentum/kernel/internal/spinlock"
	"github.com/go-argentum/kernel/internal/waitqueue"

	"github.com/go-argentum/kernel/hal"
)

// Scheduler owns the global ready queues and the per-core records.
// Exactly one Scheduler exists per kernel instance (spec.md §9: "no
// ambient singletons beyond the kernel root" — callers reach this value
// through kernel.Kernel, never a package-level global).
type Scheduler struct {
	hal  hal.Controller
	lock *spinlock.Spinlock

	numPriorities int
	ready         []waitqueue.Queue

	cores []*Core

	timeSliceTicks int
}

// New builds a scheduler for numCPU cores and numPriorities ready-queue
// levels (priority numPriorities-1 is highest), with the given
// round-robin time slice in ticks.
func New(h hal.Controller, numCPU, numPriorities, timeSliceTicks int) *Scheduler {
	s := &Scheduler{
		hal:            h,
		lock:           spinlock.New("scheduler"),
		numPriorities:  numPriorities,
		ready:          make([]waitqueue.Queue, numPriorities),
		timeSliceTicks: timeSliceTicks,
	}
	s.cores = make([]*Core, numCPU)
	for i := range s.cores {
		s.cores[i] = newCore(i, s)
	}
	return s
}

// Core returns the CPU record for index id.
func (s *Scheduler) Core(id int) *Core { return s.cores[id] }

// NumCPU returns the number of cores this scheduler manages.
func (s *Scheduler) NumCPU() int { return len(s.cores) }

func (s *Scheduler) clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p >= s.numPriorities {
		return s.numPriorities - 1
	}
	return p
}

// pushReadyLocked enqueues t on its priority's FIFO. Caller must hold
// s.lock.
func (s *Scheduler) pushReadyLocked(t *ktask.Task) {
	t.SetState(ktask.Ready)
	s.ready[s.clampPriority(t.Priority())].Enqueue(t)
}

// popReadyHighestLocked dequeues the head of the highest non-empty
// priority FIFO. Caller must hold s.lock.
func (s *Scheduler) popReadyHighestLocked() *ktask.Task {
	for p := s.numPriorities - 1; p >= 0; p-- {
		if t := s.ready[p].Dequeue(); t != nil {
			return t
		}
	}
	return nil
}

// RunLoop is a core's dedicated scheduler context: pick the highest
// ready task, hand it the core via its permit channel, and block until
// it gives the core back. When no task is ready, idle on the HAL.
//
// Call this once per core, from its own goroutine (kernel.Kernel starts
// one such goroutine per core at boot).
func (s *Scheduler) RunLoop(c *Core, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		c.Lock(s.lock)
		t := s.popReadyHighestLocked()
		if t == nil {
			c.Unlock(s.lock)
			s.hal.Idle(c.id)
			continue
		}
		t.SetState(ktask.Running)
		t.SetCore(c.id)
		t.SetSlice(s.timeSliceTicks)
		t.ClearFlag(ktask.NeedsResched)
		c.current.Store(t)
		c.Unlock(s.lock)

		t.Permit() <- struct{}{}
		<-c.free
		c.current.Store(nil)
	}
}

// Spawn registers t as Ready and makes it available to any core.
func (s *Scheduler) Spawn(c *Core, t *ktask.Task) {
	c.Lock(s.lock)
	s.pushReadyLocked(t)
	s.notifyLocked(t)
	c.Unlock(s.lock)
}

// notifyLocked wakes an idle core, or IPIs a busy core running a
// strictly lower priority task, per spec.md §4.4/§5. Caller holds
// s.lock.
func (s *Scheduler) notifyLocked(t *ktask.Task) {
	for _, c := range s.cores {
		if c.current.Load() == nil {
			s.hal.Wake(c.id)
			return
		}
	}

	best := -1
	bestPriority := t.Priority()
	for _, c := range s.cores {
		cur := c.current.Load()
		if cur != nil && cur.Priority() < bestPriority {
			best = c.id
			bestPriority = cur.Priority()
		}
	}
	if best >= 0 {
		s.cores[best].current.Load().SetFlag(ktask.NeedsResched)
		s.cores[best].ipiCount.Add(1)
		s.hal.SendIPI(-1, best)
	}
}

// Yield voluntarily gives up the core: re-enqueue the current task as
// Ready and switch to the scheduler context (spec.md §5's voluntary
// yield suspension point). It returns the core the task resumes on,
// which on a multicore scheduler may differ from c — callers must
// always continue with the returned value, never the one they passed
// in, the same discipline a real SMP kernel applies by re-reading
// "current CPU" after any preemption point.
func (s *Scheduler) Yield(c *Core) *Core {
	cur := c.current.Load()
	c.Lock(s.lock)
	s.pushReadyLocked(cur)
	c.Unlock(s.lock)

	c.free <- struct{}{}
	<-cur.Permit()
	return s.cores[cur.Core()]
}

// MaybeResched is the IRQ-epilogue preemption point of spec.md §4.3:
// called at a safe point outside of ISR context, it yields iff
// NeedsResched is set on the current task. Since Go cannot
// asynchronously interrupt arbitrary running code the way a hardware
// timer IRQ does, callers are expected to invoke this periodically at
// loop boundaries within long-running task bodies — the one place this
// simulator's preemption is cooperative rather than truly asynchronous.
func (s *Scheduler) MaybeResched(c *Core) *Core {
	if c.InISR() {
		return c
	}
	cur := c.current.Load()
	if cur != nil && cur.HasFlag(ktask.NeedsResched) {
		return s.Yield(c)
	}
	return c
}

// Exit removes the current task from scheduling permanently: it is
// marked Zombie and the core is handed back without re-enqueuing it.
func (s *Scheduler) Exit(c *Core, t *ktask.Task) {
	t.SetState(ktask.Zombie)
	t.MarkDone()
	c.free <- struct{}{}
	// No permit wait: this goroutine is returning from its trampoline
	// and will not run again.
}
