// Package ktask defines the kernel's schedulable unit (spec.md §3) and
// the arena that addresses tasks by a stable index instead of a raw
// pointer, per spec.md §9's redesign note: this eliminates dangling
// references when a task exits while still referenced by, e.g., a
// mutex's debug owner field or a wait queue's back-link.
package ktask

import "sync"

// State is a task's position in the state machine of spec.md §3.
type State int

const (
	New State = iota
	Ready
	Running
	Sleeping
	Suspended
	Zombie
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEPING"
	case Suspended:
		return "SUSPENDED"
	case Zombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// Flag is the task flag set of spec.md §3.
type Flag uint32

const (
	NeedsResched Flag = 1 << iota
	Canceled
)

// Handle is a stable arena index. The zero Handle is never valid (arena
// slot 0 is reserved), so a zero Handle reliably means "no task".
type Handle uint32

// Task is the kernel-schedulable execution context of spec.md §3.
type Task struct {
	Handle Handle
	Name   string

	StackSize int // logical only; the real stack is the backing goroutine's

	mu        sync.Mutex
	state     State
	priority  int
	slice     int
	flags     Flag
	blockedOn any // *waitqueue.Queue, typed any to avoid an import cycle
	core      int // core this task is assigned to while Running

	Ext any // user-space-thread-equivalent payload (spec.md §3)

	// permit gates the goroutine backing this task: the scheduler posts
	// to it to resume the task, and the task blocks on it whenever it
	// pauses (sleep, yield, preemption). This is the Go rendition of the
	// arch context switch described in SPEC_FULL.md §0: tinygo's
	// task_threads.go plays the identical trick with a pause semaphore
	// because it, too, cannot swap raw stacks on a POSIX target.
	permit chan struct{}

	// done is closed once the backing goroutine has returned from entry,
	// i.e. the task has reached Zombie.
	done chan struct{}

	// cancel carries a task_cancel request to a WAKEABLE sleeper.
	// UNWAKEABLE sleepers never select on it (spec.md §5, §9).
	cancel chan struct{}

	// forceWake carries a task_wakeup request (spec.md §6's external
	// Task API): unlike cancel, it resumes a sleeper in either mode with
	// a Woken outcome, the kernel-level "resume regardless" primitive
	// distinct from the user-triggered cancel path.
	forceWake chan struct{}
}

func newTask(h Handle, name string, priority, stackSize int) *Task {
	return &Task{
		Handle:    h,
		Name:      name,
		StackSize: stackSize,
		priority:  priority,
		state:     New,
		core:      -1,
		permit:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		cancel:    make(chan struct{}, 1),
		forceWake: make(chan struct{}, 1),
	}
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) SetState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Task) Priority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

func (t *Task) SetPriority(p int) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

func (t *Task) Slice() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slice
}

func (t *Task) SetSlice(n int) {
	t.mu.Lock()
	t.slice = n
	t.mu.Unlock()
}

func (t *Task) SetFlag(f Flag) {
	t.mu.Lock()
	t.flags |= f
	t.mu.Unlock()
}

func (t *Task) ClearFlag(f Flag) {
	t.mu.Lock()
	t.flags &^= f
	t.mu.Unlock()
}

func (t *Task) HasFlag(f Flag) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flags&f != 0
}

// BlockedOn returns the wait queue this task is currently parked on, or
// nil. Invariant (spec.md §3): non-nil only while State() == Sleeping,
// and a task is never linked into more than one queue at a time.
func (t *Task) BlockedOn() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockedOn
}

func (t *Task) SetBlockedOn(q any) {
	t.mu.Lock()
	t.blockedOn = q
	t.mu.Unlock()
}

func (t *Task) Core() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.core
}

func (t *Task) SetCore(c int) {
	t.mu.Lock()
	t.core = c
	t.mu.Unlock()
}

// Permit is the resume channel the scheduler posts to. Exported for use
// by the sched package, which lives in a different package to avoid a
// ktask<->sched import cycle with waitqueue.
func (t *Task) Permit() chan struct{} { return t.permit }

// Done is closed when the task reaches Zombie.
func (t *Task) Done() <-chan struct{} { return t.done }

// MarkDone closes Done exactly once.
func (t *Task) MarkDone() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

// CancelChan is the channel a WAKEABLE sleeper selects on alongside its
// resume permit.
func (t *Task) CancelChan() <-chan struct{} { return t.cancel }

// RequestCancel delivers task_cancel. Non-blocking: if the task is not
// currently parked on a WAKEABLE sleep the signal is latched in the flag
// set and stays pending on the cancel channel, so the task's next
// WAKEABLE sleep returns Canceled at once (spec.md §5).
func (t *Task) RequestCancel() {
	t.SetFlag(Canceled)
	select {
	case t.cancel <- struct{}{}:
	default:
	}
}

// ForceWakeChan is the channel a sleeper selects on alongside its resume
// permit, regardless of SleepMode, to support task_wakeup.
func (t *Task) ForceWakeChan() <-chan struct{} { return t.forceWake }

// RequestForceWake delivers task_wakeup. Non-blocking: for a task not
// currently parked the signal stays pending (at most one), so the task's
// next sleep, in either mode, returns Woken at once.
func (t *Task) RequestForceWake() {
	select {
	case t.forceWake <- struct{}{}:
	default:
	}
}
