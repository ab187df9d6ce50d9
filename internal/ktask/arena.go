package ktask

import "sync"

// Arena owns every Task in the system, addressed by Handle. Tasks are
// owned by their creator until they reach Zombie, then Reap removes them
// from the arena (spec.md §3's "owned by their creator until ZOMBIE,
// then reaped").
type Arena struct {
	mu    sync.Mutex
	slots []*Task // slots[0] is always nil; Handle 0 is never valid
	free  []Handle
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{slots: make([]*Task, 1)}
}

// Create allocates a new task in the New state.
func (a *Arena) Create(name string, priority, stackSize int) *Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	var h Handle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		h = Handle(len(a.slots))
		a.slots = append(a.slots, nil)
	}

	t := newTask(h, name, priority, stackSize)
	a.slots[h] = t
	return t
}

// Lookup returns the task for h, or nil if it has been reaped.
func (a *Arena) Lookup(h Handle) *Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(h) >= len(a.slots) {
		return nil
	}
	return a.slots[h]
}

// Reap releases a Zombie task's slot for reuse.
func (a *Arena) Reap(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(h) >= len(a.slots) || a.slots[h] == nil {
		return
	}
	a.slots[h] = nil
	a.free = append(a.free, h)
}

// All returns a snapshot of every live task, for debug/property tests.
func (a *Arena) All() []*Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Task, 0, len(a.slots))
	for _, t := range a.slots {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
