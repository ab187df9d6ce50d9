package ksync

import (
	"testing"

	"github.com/go-argentum/kernel/hal"
	"github.com/go-argentum/kernel/internal/ktask"
	"github.com/go-argentum/kernel/sched"
)

// newTestMachine builds a scheduler with numCPU cores, each running its
// own RunLoop goroutine, and an arena to create tasks from — the same
// shape kernel.Boot drives, built directly against sched/hal so these
// tests don't need to depend on the kernel package.
func newTestMachine(t *testing.T, numCPU, numPriorities, timeSlice int) (*sched.Scheduler, *ktask.Arena) {
	t.Helper()
	h := hal.NewSimController(numCPU)
	s := sched.New(h, numCPU, numPriorities, timeSlice)
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
	return s, arena
}

// spawn starts a freshly created task running entry on its own
// goroutine, mirroring kernel.TaskStart's trampoline.
func spawn(s *sched.Scheduler, arena *ktask.Arena, name string, priority int, entry func(c *sched.Core)) *ktask.Task {
	tk := arena.Create(name, priority, 4096)
	go func() {
		<-tk.Permit()
		c := s.Core(tk.Core())
		entry(c)
		s.Exit(c, tk)
	}()
	s.SpawnDetached(tk)
	return tk
}
