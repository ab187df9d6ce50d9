package ksync

import (
	"time"

	"github.com/go-argentum/kernel/internal/spinlock"
	"github.com/go-argentum/kernel/internal/waitqueue"
	"github.com/go-argentum/kernel/sched"
)

// Semaphore is a counted sleeping primitive, per spec.md §3/§4.7: a
// non-negative counter plus a wait queue. The counter is unbounded
// (limited only by the int range); Put never blocks.
type Semaphore struct {
	name    string
	sl      *spinlock.Spinlock
	q       waitqueue.Queue
	s       *sched.Scheduler
	counter int
}

// NewSemaphore returns a semaphore with the given initial counter value.
func NewSemaphore(s *sched.Scheduler, name string, initial int) *Semaphore {
	return &Semaphore{name: name, sl: spinlock.New("sema:" + name), s: s, counter: initial}
}

// TryGet decrements the counter without blocking if it is positive,
// reporting whether it did.
func (sem *Semaphore) TryGet(c *sched.Core) bool {
	c.Lock(sem.sl)
	defer c.Unlock(sem.sl)
	if sem.counter > 0 {
		sem.counter--
		return true
	}
	return false
}

// Get decrements the counter, sleeping until Put raises it above zero or
// timeout elapses (0 = wait indefinitely). Returns the core the caller
// resumes on and the outcome.
func (sem *Semaphore) Get(c *sched.Core, timeout time.Duration) (*sched.Core, sched.Result) {
	c.Lock(sem.sl)
	if sem.counter > 0 {
		sem.counter--
		c.Unlock(sem.sl)
		return c, sched.Woken
	}

	newCore, res := sem.s.Sleep(c, &sem.q, sem.sl, timeout, sched.Wakeable)
	// A Woken waiter's unit was handed to it directly by Put below,
	// without ever touching the visible counter — so no decrement here.
	// Doing counter-- unconditionally would race a concurrent Get that
	// slips in and claims the same increment before this waiter resumes.
	newCore.Unlock(sem.sl)
	return newCore, res
}

// Put increments the counter and wakes one waiter. If a waiter is
// parked, the unit goes straight to it (the counter is left untouched)
// rather than incrementing-then-waking, which would let a concurrent Get
// race in and steal the unit meant for the already-chosen waiter.
func (sem *Semaphore) Put(c *sched.Core) {
	c.Lock(sem.sl)
	waiter := sem.q.Dequeue()
	if waiter == nil {
		sem.counter++
		c.Unlock(sem.sl)
		return
	}
	waiter.SetBlockedOn(nil)
	sem.s.Ready(c, waiter)
	c.Unlock(sem.sl)
}
