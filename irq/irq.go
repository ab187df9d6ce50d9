// Package irq is the dispatcher of spec.md §4.10: it demultiplexes a
// firing hardware IRQ number to either a direct-in-IRQ handler or a
// thread-attached one, grounded on original_source's irq.h/
// arch_interrupt.c split and the teacher's scheduler_threads.go pattern
// of a dedicated goroutine blocking on a semaphore for deferred work.
package irq

import (
	"github.com/go-argentum/kernel/hal"
	"github.com/go-argentum/kernel/internal/kpanic"
	"github.com/go-argentum/kernel/ksync"
	"github.com/go-argentum/kernel/sched"
)

const callChainDepth = 4

// Handler runs in IRQ context (direct) or in the handler's own thread
// (thread-attached); arg is the opaque value supplied at Attach time.
type Handler func(c *sched.Core, arg any)

type entry struct {
	direct  Handler
	threadH Handler
	arg     any
	sem     *ksync.Semaphore
}

// Dispatcher owns the IRQ number → handler table and installs itself as
// the HAL's interrupt demultiplexer.
type Dispatcher struct {
	hal     hal.Controller
	s       *sched.Scheduler
	entries map[int]*entry
}

// New returns a dispatcher bound to hal h and scheduler s.
func New(h hal.Controller, s *sched.Scheduler) *Dispatcher {
	return &Dispatcher{hal: h, s: s, entries: make(map[int]*entry)}
}

// Attach installs a direct handler for irq: it runs in IRQ context on
// the firing core, never sleeps, and may only take spinlocks (spec.md
// §5: "IRQ handlers may take spinlocks but never sleeping locks").
func (d *Dispatcher) Attach(irq int, h Handler, arg any) {
	if _, exists := d.entries[irq]; exists {
		kpanic.Contract("irq: re-attaching live IRQ line", callChainDepth)
	}
	d.entries[irq] = &entry{direct: h, arg: arg}
}

// AttachThread installs a thread-attached handler: the IRQ epilogue
// masks the line, posts to the handler thread's semaphore, and returns;
// a dedicated goroutine loops acquiring the semaphore, running h outside
// IRQ context (so it may take sleeping locks), then unmasking the line.
// Call StartThread once per such attachment, after the kernel's task
// infrastructure is up, to launch that goroutine.
func (d *Dispatcher) AttachThread(irq int, h Handler, arg any) {
	if _, exists := d.entries[irq]; exists {
		kpanic.Contract("irq: re-attaching live IRQ line", callChainDepth)
	}
	d.entries[irq] = &entry{threadH: h, arg: arg, sem: ksync.NewSemaphore(d.s, "irq-thread", 0)}
	d.hal.MaskIRQ(irq)
}

// StartThread launches the handler-thread loop for a thread-attached
// IRQ. The loop blocks on the attachment's own semaphore exactly like any
// other task blocking on ksync.Semaphore.Get, so it must itself be a
// genuine scheduled task rather than a bare goroutine: Get's Sleep path
// reads the task actually current on the Core it's given, and a raw
// goroutine holding a live core's *sched.Core would misattribute that
// park to whatever real task happens to be running there. spawn is the
// caller's task-creation hook (kernel.TaskCreate+TaskStart) so the loop
// gets its own task identity and is scheduled like everything else.
func (d *Dispatcher) StartThread(spawn func(entry func(c *sched.Core)), irq int, stop <-chan struct{}) {
	e, ok := d.entries[irq]
	if !ok || e.threadH == nil {
		kpanic.Contract("irq: StartThread on an unattached or non-thread IRQ", callChainDepth)
	}
	spawn(func(c *sched.Core) {
		for {
			select {
			case <-stop:
				return
			default:
			}
			newCore, _ := e.sem.Get(c, 0)
			c = newCore
			e.threadH(c, e.arg)
			d.hal.UnmaskIRQ(irq)
		}
	})
}

// Dispatch is the HAL's entry point when IRQ number irq fires on core c.
// A direct handler runs inline; for a thread-attached handler the line is
// masked, its handler thread is woken via the semaphore, and Dispatch
// returns immediately.
func (d *Dispatcher) Dispatch(c *sched.Core, irq int) {
	e, ok := d.entries[irq]
	if !ok {
		return
	}
	c.EnterISR()
	defer c.ExitISR()

	if e.direct != nil {
		e.direct(c, e.arg)
		d.hal.EOI(irq)
		return
	}
	d.hal.MaskIRQ(irq)
	e.sem.Put(c)
	d.hal.EOI(irq)
}
