package ksync

import (
	"time"

	"github.com/go-argentum/kernel/internal/spinlock"
	"github.com/go-argentum/kernel/internal/waitqueue"
	"github.com/go-argentum/kernel/sched"
)

// Cond is a condition variable always used paired with an externally
// supplied Mutex, per spec.md §4.6. Waiters must retest their predicate
// after Wait returns (Mesa semantics, spec.md §4.3/glossary) — a signal
// or broadcast only promises that the waiter will be re-scheduled, not
// that the condition still holds.
type Cond struct {
	name string
	sl   *spinlock.Spinlock
	q    waitqueue.Queue
	s    *sched.Scheduler
}

// NewCond returns a condition variable with no associated mutex fixed in
// advance; m is supplied per call, as spec.md §4.6 and the teacher's
// nsync-style condvar API both allow the same Cond to pair with
// different mutexes across calls (though never concurrently).
func NewCond(s *sched.Scheduler, name string) *Cond {
	return &Cond{name: name, sl: spinlock.New("cond:" + name), s: s}
}

// Wait requires m held by the calling task; it enqueues the caller,
// unlocks m, blocks, and on return re-locks m before returning. Callers
// must loop on their predicate (Mesa semantics) — this is not a
// guarantee that the condition holds, only that the task ran again.
func (cv *Cond) Wait(c *sched.Core, m *Mutex) (*sched.Core, sched.Result) {
	return cv.WaitTimeout(c, m, 0)
}

// WaitTimeout is Wait with an upper bound on how long to block; a
// timeout of 0 waits indefinitely, matching Wait.
func (cv *Cond) WaitTimeout(c *sched.Core, m *Mutex, timeout time.Duration) (*sched.Core, sched.Result) {
	cur := c.Current()
	if !m.Holding(cur) {
		contractViolation("cond: " + cv.name + ": Wait called without holding the paired mutex")
	}

	c.Lock(cv.sl)
	cv.s.EnqueueBlocked(cur, &cv.q)
	m.Unlock(c)

	newCore, res := cv.s.Park(c, cur, &cv.q, cv.sl, timeout, sched.Wakeable)
	// Park already re-acquired cv.sl for us on return; release it before
	// re-taking m, otherwise a concurrent Signal/Broadcast trying to lock
	// cv.sl while we hold both locks could deadlock against Mutex.Lock's
	// own ordering.
	newCore.Unlock(cv.sl)

	lockedCore, lockRes := m.Lock(newCore)
	if res == sched.Woken {
		res = lockRes
	}
	return lockedCore, res
}

// Signal wakes one waiter, if any.
func (cv *Cond) Signal(c *sched.Core) {
	c.Lock(cv.sl)
	cv.s.WakeOne(c, &cv.q)
	c.Unlock(cv.sl)
}

// Broadcast wakes every current waiter.
func (cv *Cond) Broadcast(c *sched.Core) {
	c.Lock(cv.sl)
	cv.s.WakeAll(c, &cv.q)
	c.Unlock(cv.sl)
}
