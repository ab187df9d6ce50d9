// Package ksync provides the sleeping synchronization primitives built
// on top of package sched's wait-queue operations: Mutex, Cond,
// Semaphore, and Mailbox. Grounded on the teacher's src/sync/mutex.go
// RWMutex (a futex-shaped wait point guarding a shared word) and
// original_source's kmutex.h/mutex.h for the pass-the-baton contract.
package ksync

import (
	"github.com/go-argentum/kernel/internal/ktask"
	"github.com/go-argentum/kernel/internal/spinlock"
	"github.com/go-argentum/kernel/internal/waitqueue"
	"github.com/go-argentum/kernel/sched"
)

// Mutex is a sleeping lock with ownership tracking and no recursion, per
// spec.md §3/§4.5. The zero value is not usable; build one with
// NewMutex.
type Mutex struct {
	name string
	sl   *spinlock.Spinlock
	q    waitqueue.Queue
	s    *sched.Scheduler

	owner *ktask.Task
}

// NewMutex returns an unlocked mutex. name is used only in panic
// messages and debug inspection.
func NewMutex(s *sched.Scheduler, name string) *Mutex {
	m := &Mutex{name: name, sl: spinlock.New("mutex:" + name), s: s}
	registerMutex(m)
	return m
}

// Lock acquires m, blocking if it is already held. Returns the core the
// caller resumes on, which may differ from c (see sched.Yield's doc
// comment) — callers must continue with the returned value — and the
// outcome: Woken on ordinary acquisition, or Canceled if task_cancel
// raced the wait and won (spec.md §9's open question: since Unlock's
// Dequeue and a cancel's queue removal both run under m.sl, the two can
// never straddle the ownership handoff — either Unlock has not yet
// reached this waiter, so cancellation is a clean removal and the
// following waiter inherits the baton unaffected, or Unlock already
// popped it as the next owner, in which case the Canceled signal is
// simply latched and Lock still returns Woken with ownership granted).
func (m *Mutex) Lock(c *sched.Core) (*sched.Core, sched.Result) {
	c.Lock(m.sl)
	cur := c.Current()
	if cur == m.owner {
		c.Unlock(m.sl)
		contractViolation("mutex: " + m.name + ": recursive Lock by owner")
	}
	if m.owner == nil {
		m.owner = cur
		c.Unlock(m.sl)
		return c, sched.Woken
	}

	newCore, res := m.s.Sleep(c, &m.q, m.sl, 0, sched.Wakeable)
	newCore.Unlock(m.sl)
	return newCore, res
}

// Unlock releases m. The caller must be the current owner. If waiters
// are queued, ownership transfers to the head waiter before it is woken
// (pass-the-baton, spec.md §4.5): this avoids a thundering herd and
// preserves FIFO fairness.
func (m *Mutex) Unlock(c *sched.Core) {
	c.Lock(m.sl)
	cur := c.Current()
	if m.owner != cur {
		c.Unlock(m.sl)
		contractViolation("mutex: " + m.name + ": Unlock by non-owner")
	}

	next := m.q.Dequeue()
	if next == nil {
		m.owner = nil
		c.Unlock(m.sl)
		return
	}
	m.owner = next
	next.SetBlockedOn(nil)
	m.s.Ready(c, next)
	c.Unlock(m.sl)
}

// Holding reports whether t currently owns m. Read-only; racy if called
// without external synchronization, as spec.md §4.5 allows (`holding()`
// is documented as a read-only owner check, not a lock primitive).
func (m *Mutex) Holding(t *ktask.Task) bool {
	return m.owner == t
}
