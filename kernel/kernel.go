// Package kernel is the single public root of the concurrency
// substrate: it wires the arena, scheduler, timer wheel and IRQ
// dispatcher together and exposes spec.md §6's External Interfaces —
// the boot protocol, Task API, and IRQ attach API — as its only
// exported surface, per spec.md §9's redesign note that per-CPU state
// and the ready queues live behind one well-known root rather than
// package-level globals. Grounded on the teacher's run()/core_init-style
// bring-up in scheduler_cores.go and original_source's smp.c secondary-
// core ordering.
package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-argentum/kernel/hal"
	"github.com/go-argentum/kernel/internal/klog"
	"github.com/go-argentum/kernel/internal/kpanic"
	"github.com/go-argentum/kernel/internal/ktask"
	"github.com/go-argentum/kernel/internal/timerwheel"
	"github.com/go-argentum/kernel/irq"
	"github.com/go-argentum/kernel/ksync"
	"github.com/go-argentum/kernel/sched"
)

const callChainDepth = 4

// tickIRQ is the reserved IRQ number the simulated periodic timer fires
// on, attached directly (never thread-attached: the tick handler itself
// only touches spinlock-protected state, per spec.md §4.9).
const tickIRQ = 0

// deviceIRQ is a reserved IRQ number standing in for a real device line
// (e.g. a UART or disk completion) whose handling is deferred to its own
// thread rather than run in IRQ context, per spec.md §4.10. It fires
// every deviceIRQPeriod ticks — a stand-in interrupt source, since this
// simulator has no real device to wire it to.
const deviceIRQ = 1
const deviceIRQPeriod = 5

// Kernel is the boot-time-constructed root value. There is exactly one
// per simulated machine.
type Kernel struct {
	profile Profile
	hal     hal.Controller
	sched   *sched.Scheduler
	arena   *ktask.Arena
	wheel   *timerwheel.Wheel
	irq     *irq.Dispatcher
	log     *klog.Logger

	onTaskDestroy func(ktask.Handle)

	deviceEvents atomic.Int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New performs spec.md §6's core_init: build the ready queues, tick
// state, and timer callback thread. No core is running a scheduler loop
// yet — call Boot to bring the machine up.
func New(profile Profile) *Kernel {
	h := hal.NewSimController(profile.NumCPU)
	s := sched.New(h, profile.NumCPU, profile.NumPriorities, profile.TimeSliceTicks)
	k := &Kernel{
		profile: profile,
		hal:     h,
		sched:   s,
		arena:   ktask.NewArena(),
		wheel:   timerwheel.NewWheel(),
		log:     klog.New(),
		stop:    make(chan struct{}),
	}
	k.irq = irq.New(h, s)
	k.irq.Attach(tickIRQ, k.onTick, nil)
	k.irq.AttachThread(deviceIRQ, k.onDeviceIRQ, nil)
	return k
}

// SetOnTaskDestroy installs the hook spec.md §6 names: invoked once a
// task reaches ZOMBIE and is about to be reaped, so higher layers can
// release thread-specific state.
func (k *Kernel) SetOnTaskDestroy(f func(ktask.Handle)) {
	k.onTaskDestroy = f
}

// Boot brings the machine up: the bootstrap core (id 0) completes
// core_init_percpu synchronously before any secondary core begins its
// own core_init_percpu, preserving the original smp.c bring-up order
// even though here every core is a goroutine rather than a physically
// distinct CPU. The tick source starts last.
func (k *Kernel) Boot() {
	var gate sync.WaitGroup
	gate.Add(1)
	k.wg.Add(1)
	go k.startCore(0, gate.Done)
	gate.Wait()

	for id := 1; id < k.sched.NumCPU(); id++ {
		id := id
		k.wg.Add(1)
		go k.startCore(id, nil)
	}

	// StartThread per AttachThread's doc comment: launched once task
	// infrastructure (the scheduler's cores) is up. The handler loop runs
	// as a genuine task, at the top priority, so it preempts ordinary
	// work the moment its semaphore is posted.
	k.irq.StartThread(func(entry func(c *sched.Core)) {
		h := k.TaskCreate("irq:device", k.profile.NumPriorities-1, entry)
		k.TaskStart(h)
	}, deviceIRQ, k.stop)

	k.wg.Add(1)
	go k.tickLoop()
}

// Shutdown stops every core's scheduler loop and the tick source, and
// waits for them to return. A core idling in hal.Idle only reexamines
// stop once woken, so every core gets an explicit Wake alongside the
// close. Intended for tests that need a clean teardown between cases.
func (k *Kernel) Shutdown() {
	close(k.stop)
	for id := 0; id < k.sched.NumCPU(); id++ {
		k.hal.Wake(id)
	}
	k.wg.Wait()
	k.wheel.Close()
}

// startCore performs core_init_percpu (enable this core's interrupts)
// then enters its scheduler loop, which never returns until Shutdown.
func (k *Kernel) startCore(id int, onPercpuDone func()) {
	defer k.wg.Done()
	c := k.sched.Core(id)
	hal.PinCurrentThread(id)
	k.hal.IRQEnable(id)
	k.log.Trace(id, "core_init_percpu complete")
	if onPercpuDone != nil {
		onPercpuDone()
	}
	k.sched.RunLoop(c, k.stop)
}

// tickLoop simulates the periodic timer IRQ firing on every core: each
// period it decrements every running task's time slice (setting
// NeedsResched on zero, spec.md §4.9 step 1) and dispatches the tick IRQ,
// whose direct handler (core 0 only) advances the tick counter and the
// timer wheel (step 2/3).
func (k *Kernel) tickLoop() {
	defer k.wg.Done()
	period := time.Duration(k.profile.TickPeriodMS) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			n++
			for id := 0; id < k.sched.NumCPU(); id++ {
				c := k.sched.Core(id)
				cur := c.Current()
				if cur == nil {
					continue
				}
				remaining := cur.Slice() - 1
				if remaining <= 0 {
					remaining = 0
					cur.SetFlag(ktask.NeedsResched)
				}
				cur.SetSlice(remaining)
			}
			k.irq.Dispatch(k.sched.Core(0), tickIRQ)
			if n%deviceIRQPeriod == 0 {
				k.irq.Dispatch(k.sched.Core(0), deviceIRQ)
			}
		}
	}
}

// onDeviceIRQ is deviceIRQ's thread-attached handler: it runs on its own
// goroutine (spawned by irq.StartThread), off the interrupt path, so
// unlike onTick it would be free to take sleeping locks if it needed to.
func (k *Kernel) onDeviceIRQ(c *sched.Core, arg any) {
	k.deviceEvents.Add(1)
}

// DeviceEventCount reports how many times the demo thread-attached
// device IRQ has been handled. Debug/test visibility only.
func (k *Kernel) DeviceEventCount() int64 {
	return k.deviceEvents.Load()
}

// onTick is tickIRQ's direct handler: advance the monotonic counter and
// walk the timer wheel. Runs in IRQ context, so it must never sleep —
// Wheel.Advance only takes its own internal mutex and hands expired
// callbacks to the wheel's dedicated runner goroutine.
func (k *Kernel) onTick(c *sched.Core, arg any) {
	k.wheel.Advance()
}

// TickGet returns the 64-bit monotonic tick count (spec.md §6's
// tick_get).
func (k *Kernel) TickGet() uint64 {
	return k.wheel.Tick()
}

// Scheduler exposes the underlying scheduler for packages (ksync,
// cmd/argentumsim, kernel/userprog) that need to drive Core-bearing
// primitive calls directly. Not part of spec.md's external Task API
// proper, but required to let callers build their own mutex/condvar/
// semaphore instances against this kernel's scheduler.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }

// IRQ exposes the dispatcher for irq_attach/irq_attach_thread callers.
func (k *Kernel) IRQ() *irq.Dispatcher { return k.irq }

func (k *Kernel) mustLookup(h ktask.Handle) *ktask.Task {
	t := k.arena.Lookup(h)
	if t == nil {
		kpanic.Contract("kernel: operation on unknown or reaped task handle", callChainDepth)
	}
	return t
}

// TaskCreate allocates a new task in state NEW (spec.md §6's
// task_create(entry, stack, priority)). It does not run until TaskStart.
func (k *Kernel) TaskCreate(name string, priority int, entry func(c *sched.Core)) ktask.Handle {
	stackBytes := k.profile.DefaultStackKiB * 1024
	t := k.arena.Create(name, priority, stackBytes)
	t.Ext = entry
	return t.Handle
}

// TaskStart makes a NEW task schedulable. Its entry function runs on its
// own goroutine, gated by the task's resume permit exactly like every
// other suspension point in this module.
func (k *Kernel) TaskStart(h ktask.Handle) {
	t := k.mustLookup(h)
	entry, ok := t.Ext.(func(*sched.Core))
	if !ok {
		kpanic.Contract("kernel: TaskStart: task has no entry function", callChainDepth)
	}

	go func() {
		<-t.Permit()
		c := k.sched.Core(t.Core())
		entry(c)
		k.exit(c, t)
	}()

	k.sched.SpawnDetached(t)
}

// TaskYield voluntarily gives up the core (spec.md §6's task_yield).
// Returns the core the caller resumes on; see sched.Yield's doc comment.
func (k *Kernel) TaskYield(c *sched.Core) *sched.Core {
	return k.sched.Yield(c)
}

// TaskExit terminates the calling task immediately, from any call depth
// (spec.md §6's task_exit): it runs the same cleanup TaskStart's
// trampoline runs on a normal return, then unwinds the calling goroutine
// with runtime.Goexit so deferred cleanup in the caller's own frames
// still executes before the goroutine disappears.
func (k *Kernel) TaskExit(c *sched.Core) {
	t := c.Current()
	k.exit(c, t)
	runtime.Goexit()
}

func (k *Kernel) exit(c *sched.Core, t *ktask.Task) {
	k.sched.Exit(c, t)
	if k.onTaskDestroy != nil {
		k.onTaskDestroy(t.Handle)
	}
	k.arena.Reap(t.Handle)
}

// TaskCurrent returns the task running on c (spec.md §6's task_current).
func (k *Kernel) TaskCurrent(c *sched.Core) *ktask.Task {
	return c.Current()
}

// TaskWakeup forces a sleeping task to resume regardless of what
// primitive it is blocked in (spec.md §6's task_wakeup). If the task
// isn't currently parked, the request stays pending until its next sleep.
func (k *Kernel) TaskWakeup(h ktask.Handle) {
	t := k.mustLookup(h)
	k.sched.ForceWake(t)
}

// TaskCancel delivers task_cancel (spec.md §6/§5/§9): a WAKEABLE sleeper
// resumes with Canceled; an UNWAKEABLE sleeper or a non-parked task
// simply latches the flag with no immediate effect.
func (k *Kernel) TaskCancel(h ktask.Handle) {
	t := k.mustLookup(h)
	k.sched.Cancel(t)
}

// DebugLocksHeldBy is a debug-only, non-hot-path query recovered from
// original_source/'s monitor command set (SPEC_FULL.md §4): it reports
// the debug names of mutexes t currently owns. Advisory and racy by
// design, like the original's monitor dump — never call this from a
// scheduling fast path.
func (k *Kernel) DebugLocksHeldBy(h ktask.Handle) []string {
	t := k.arena.Lookup(h)
	if t == nil {
		return nil
	}
	var held []string
	for name, m := range ksync.DebugMutexes() {
		if m.Holding(t) {
			held = append(held, name)
		}
	}
	return held
}
