package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-argentum/kernel/hal"
	"github.com/go-argentum/kernel/internal/ktask"
	"github.com/go-argentum/kernel/internal/spinlock"
	"github.com/go-argentum/kernel/internal/waitqueue"
)

// newTestMachine builds a scheduler with its own arena and starts every
// core's RunLoop on a dedicated goroutine, the same shape kernel.Boot
// drives in production. stop lets the caller tear it down.
func newTestMachine(t *testing.T, numCPU, numPriorities, timeSlice int) (*Scheduler, *ktask.Arena, chan struct{}) {
	t.Helper()
	h := hal.NewSimController(numCPU)
	s := New(h, numCPU, numPriorities, timeSlice)
	arena := ktask.NewArena()
	stop := make(chan struct{})
	for id := 0; id < numCPU; id++ {
		h.IRQEnable(id)
		go s.RunLoop(s.Core(id), stop)
	}
	t.Cleanup(func() {
		close(stop)
		for id := 0; id < numCPU; id++ {
			h.Wake(id)
		}
	})
	return s, arena, stop
}

// spawn starts a freshly created task running entry, the way
// kernel.TaskStart's trampoline does, without going through the kernel
// package (which would import sched and create a cycle).
func spawn(s *Scheduler, arena *ktask.Arena, name string, priority int, entry func(c *Core)) *ktask.Task {
	t := arena.Create(name, priority, 4096)
	go func() {
		<-t.Permit()
		c := s.Core(t.Core())
		entry(c)
		s.Exit(c, t)
	}()
	s.SpawnDetached(t)
	return t
}

// TestReadyQueueIsFIFO exercises spec.md §8's FIFO fairness property at
// the ready-queue level, directly and deterministically: tasks enqueued
// at the same priority are dequeued in exactly the order they arrived,
// independent of goroutine scheduling timing.
func TestReadyQueueIsFIFO(t *testing.T) {
	h := hal.NewSimController(1)
	s := New(h, 1, 4, 10)
	arena := ktask.NewArena()
	c := s.Core(0)

	const n = 10
	tasks := make([]*ktask.Task, n)
	c.Lock(s.lock)
	for i := 0; i < n; i++ {
		tasks[i] = arena.Create("t", 2, 4096)
		s.pushReadyLocked(tasks[i])
	}
	c.Unlock(s.lock)

	c.Lock(s.lock)
	for i := 0; i < n; i++ {
		got := s.popReadyHighestLocked()
		require.NotNil(t, got)
		assert.Equal(t, tasks[i].Handle, got.Handle, "ready queue returned tasks out of enqueue order")
	}
	assert.Nil(t, s.popReadyHighestLocked())
	c.Unlock(s.lock)
}

// TestTasksOfEqualPriorityRunInArrivalOrder is the full-stack version of
// the same property: newly spawned equal-priority tasks are serviced in
// the order Spawn/SpawnDetached enqueued them.
func TestTasksOfEqualPriorityRunInArrivalOrder(t *testing.T) {
	s, arena, _ := newTestMachine(t, 1, 4, 10)

	const n = 5
	var mu sync.Mutex
	var order []int
	started := make(chan struct{}, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		spawn(s, arena, "rr", 2, func(c *Core) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			started <- struct{}{}
		})
		// Wait for this task to actually run and record itself before
		// spawning the next, so the recorded order reflects true arrival
		// order rather than a race between spawn and the RunLoop goroutine.
		<-started
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not complete in time")
	}

	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i], "tasks of equal priority ran out of arrival order")
	}
}

// TestCrossCoreWakeupIncrementsIPICount is spec.md §8 boundary scenario
// 6: a task blocked on a wait queue resumes after a waker on another
// core wakes it, and — since that wake finds every core already busy —
// the scheduler's notifyLocked must IPI a lower-priority busy core
// rather than rely on an idle one, incrementing exactly one core's IPI
// counter.
func TestCrossCoreWakeupIncrementsIPICount(t *testing.T) {
	s, arena, _ := newTestMachine(t, 2, 4, 10)

	q := &waitqueue.Queue{}
	lock := spinlock.New("cross-core-test")

	// filler keeps one core permanently busy at low priority, checking
	// for preemption at every loop iteration — the cooperative
	// resched-point discipline this simulator's MaybeResched doc comment
	// describes in place of a true asynchronous timer IRQ.
	fillerStop := make(chan struct{})
	spawn(s, arena, "filler", 1, func(c *Core) {
		for {
			select {
			case <-fillerStop:
				return
			default:
			}
			c = s.MaybeResched(c)
		}
	})

	resumed := make(chan int, 1)
	blocker := spawn(s, arena, "blocker", 5, func(c *Core) {
		c.Lock(lock)
		newCore, res := s.Sleep(c, q, lock, 0, Wakeable)
		c = newCore
		c.Unlock(lock)
		if res == Woken {
			resumed <- c.ID()
		}
	})
	_ = blocker

	// Give filler and blocker a moment to actually settle onto the two
	// cores (filler running, blocker parked) before waking it.
	time.Sleep(50 * time.Millisecond)

	before := make([]int64, s.NumCPU())
	for id := range before {
		before[id] = s.Core(id).IPICount()
	}

	wokeOne := make(chan struct{})
	spawn(s, arena, "waker", 1, func(c *Core) {
		c.Lock(lock)
		s.WakeOne(c, q)
		c.Unlock(lock)
		close(wokeOne)
	})

	select {
	case <-wokeOne:
	case <-time.After(2 * time.Second):
		t.Fatal("waker never ran WakeOne")
	}

	after := make([]int64, s.NumCPU())
	var delta int64
	for id := range after {
		after[id] = s.Core(id).IPICount()
		assert.GreaterOrEqual(t, after[id], before[id], "IPI count must never decrease")
		delta += after[id] - before[id]
	}
	assert.Equal(t, int64(1), delta, "exactly one core should be IPI'd to service the wake")

	select {
	case <-resumed:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked task never resumed after being woken")
	}
	close(fillerStop)
}
