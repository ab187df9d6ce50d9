package sched

import (
	"time"

	"github.com/go-argentum/kernel/internal/ktask"
	"github.com/go-argentum/kernel/internal/spinlock"
	"github.com/go-argentum/kernel/internal/waitqueue"
)

// detachedCore tags spinlock acquisitions made by a task goroutine that
// currently owns no core (parked, between giving its core back and
// being granted a new one). It can never collide with a real core id.
const detachedCore = -1

// Sleep implements the wait-queue contract of spec.md §4.4: the caller
// must already hold lock; Sleep enqueues the current task on q, releases
// lock atomically with parking, and on return re-acquires lock. A
// timeout of 0 means wait indefinitely.
//
// Sleep returns the Core the task resumes on (see Yield's doc comment —
// the same "re-read current core after any suspension point" discipline
// applies here) and the outcome: Woken, TimedOut, or, for a Wakeable
// sleep, Canceled.
func (s *Scheduler) Sleep(c *Core, q *waitqueue.Queue, lock *spinlock.Spinlock, timeout time.Duration, mode SleepMode) (*Core, Result) {
	cur := c.current.Load()
	s.EnqueueBlocked(cur, q)
	return s.Park(c, cur, q, lock, timeout, mode)
}

// EnqueueBlocked marks t Sleeping, links its blocked-on back-pointer to
// q, and enqueues it. Split out from Sleep/Park so a primitive can
// interleave additional bookkeeping between enqueue and releasing its
// lock — condvar.Wait enqueues on the condvar's own queue and unlocks
// the paired external mutex before parking (spec.md §4.6's precise
// ordering), which Sleep's single-lock contract can't express on its
// own.
func (s *Scheduler) EnqueueBlocked(t *ktask.Task, q *waitqueue.Queue) {
	t.SetState(ktask.Sleeping)
	t.SetBlockedOn(q)
	q.Enqueue(t)
}

// Park suspends cur, already enqueued on q by the caller, releasing lock
// atomically with parking and re-acquiring it before return. See Sleep,
// which is Park preceded by EnqueueBlocked.
func (s *Scheduler) Park(c *Core, cur *ktask.Task, q *waitqueue.Queue, lock *spinlock.Spinlock, timeout time.Duration, mode SleepMode) (*Core, Result) {
	c.Unlock(lock)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	// Hand the core back to its scheduler loop before blocking on our own
	// wake conditions: RunLoop is waiting on <-c.free the moment it
	// granted us the permit, so we must post it first or the core can
	// never run anything else while we sleep.
	c.free <- struct{}{}

	res := s.parkUntil(cur, q, lock, timeoutCh, mode)

	newCore := s.cores[cur.Core()]
	newCore.Lock(lock)
	return newCore, res
}

// parkUntil blocks the calling goroutine until the task is granted a
// core again (Woken), its timeout fires, or — for a Wakeable sleep — it
// is canceled.
func (s *Scheduler) parkUntil(cur *ktask.Task, q *waitqueue.Queue, lock *spinlock.Spinlock, timeoutCh <-chan time.Time, mode SleepMode) Result {
	var cancelCh <-chan struct{}
	if mode == Wakeable {
		cancelCh = cur.CancelChan()
	}

	select {
	case <-cur.Permit():
		return Woken
	case <-timeoutCh:
		return s.reclaimOrWait(cur, q, lock, TimedOut)
	case <-cancelCh:
		return s.reclaimOrWait(cur, q, lock, Canceled)
	case <-cur.ForceWakeChan():
		return s.reclaimOrWait(cur, q, lock, Woken)
	}
}

// reclaimOrWait tries to pull cur back out of q under q's own protecting
// lock (the same lock every other mutator of q uses — the scheduler's
// internal lock only protects the separate ready queues), racing safely
// against a concurrent WakeOne/WakeAll or a primitive-specific pass-the-
// baton scan. If cur is no longer there, a wake already won the race and
// is guaranteed to post cur's permit (along with assigning it a core),
// so we wait for that instead of reporting the caller's preferred
// outcome. If cur was removed here, it gave its core back in Park, so it
// is made Ready and waits for a core to grant it a permit before
// returning the caller's outcome.
func (s *Scheduler) reclaimOrWait(cur *ktask.Task, q *waitqueue.Queue, lock *spinlock.Spinlock, outcome Result) Result {
	lock.Lock(detachedCore)
	removed := q.Remove(cur)
	lock.Unlock()
	if removed {
		cur.SetBlockedOn(nil)
		s.SpawnDetached(cur)
		<-cur.Permit()
		return outcome
	}
	<-cur.Permit()
	return Woken
}

// WakeOne moves the head task of q to the ready queue, per spec.md
// §4.4. The caller must hold the lock protecting q.
func (s *Scheduler) WakeOne(c *Core, q *waitqueue.Queue) *ktask.Task {
	t := q.Dequeue()
	if t == nil {
		return nil
	}
	t.SetBlockedOn(nil)
	s.readyLockedBy(c, t)
	return t
}

// WakeAll moves every task on q to the ready queue, FIFO order
// preserved. The caller must hold the lock protecting q.
func (s *Scheduler) WakeAll(c *Core, q *waitqueue.Queue) []*ktask.Task {
	var woken []*ktask.Task
	for {
		t := q.Dequeue()
		if t == nil {
			break
		}
		t.SetBlockedOn(nil)
		s.readyLockedBy(c, t)
		woken = append(woken, t)
	}
	return woken
}

// Ready pushes an already-dequeued task t onto the global ready queues
// and issues the idle-wake/IPI notification, without touching any
// primitive-specific wait queue itself. Used by primitives (e.g.
// Mutex.Unlock's pass-the-baton transfer) that must dequeue their own
// waiter under their own lock before handing it to the scheduler.
func (s *Scheduler) Ready(c *Core, t *ktask.Task) {
	s.readyLockedBy(c, t)
}

// readyLockedBy enqueues t onto the global ready queues and issues the
// idle-wake/IPI notification. q's own lock is already held by the
// caller; this takes the separate scheduler lock internally, exactly as
// spec.md describes two distinct spinlocks (the object's own, and the
// scheduler's).
func (s *Scheduler) readyLockedBy(c *Core, t *ktask.Task) {
	c.Lock(s.lock)
	s.pushReadyLocked(t)
	s.notifyLocked(t)
	c.Unlock(s.lock)
}

// Cancel delivers task_cancel to t. If t is parked in a Wakeable sleep
// it resumes with Canceled; otherwise the cancellation stays pending and
// t's next Wakeable sleep returns Canceled at once (spec.md §5, §9).
func (s *Scheduler) Cancel(t *ktask.Task) {
	t.RequestCancel()
}

// ForceWake delivers task_wakeup to t (spec.md §6): if t is parked on
// any wait queue, in either SleepMode, it resumes with Woken. If t isn't
// currently parked, the request stays pending and t's next sleep returns
// Woken at once.
func (s *Scheduler) ForceWake(t *ktask.Task) {
	t.RequestForceWake()
}

// SpawnDetached registers a brand-new task as Ready without requiring
// the caller to already be running on a Core — used by kernel boot code
// before any task is executing, and by a sleeper that must be granted a
// core again after a timeout, cancel or forced wake. See the Core-bearing
// Spawn in scheduler.go for the task-creation-from-within-a-task path.
func (s *Scheduler) SpawnDetached(t *ktask.Task) {
	s.lock.Lock(detachedCore)
	s.pushReadyLocked(t)
	s.notifyLocked(t)
	s.lock.Unlock()
}
