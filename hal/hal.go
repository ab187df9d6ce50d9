// Package hal is the kernel's hardware-abstraction seam (spec.md §4.1,
// §6). The core never reads a hardware register or an ambient
// thread-local "current core" directly; every operation is addressed by
// an explicit core index, which is how the spec's own redesign note
// ("no ambient singletons beyond the kernel root") gets carried into a
// language with no portable goroutine-local storage.
package hal

// Controller is the seam the scheduler and IRQ dispatcher drive. A real
// target implements this over GIC/APIC registers and WFI/WFE; Controller
// here is implemented in-process by SimController.
type Controller interface {
	// NumCPU returns the number of simulated cores.
	NumCPU() int

	// IRQEnable/IRQDisable are the raw (non-nesting) primitives; callers
	// needing the counted save/restore discipline of spec.md §4.1 use
	// sched.Core.IRQSave/IRQRestore instead, which are built on these.
	IRQEnable(core int)
	IRQDisable(core int)
	IRQEnabled(core int) bool

	// SendIPI posts an inter-processor interrupt from one core to
	// another, the only mechanism that makes another core re-examine
	// its ready queue (spec.md §5).
	SendIPI(from, to int)

	// Idle blocks the calling core until woken by Wake, an IPI, or a
	// timer tick — the simulated equivalent of a WFI/WFE instruction.
	Idle(core int)

	// Wake releases a core parked in Idle. Safe to call even if the
	// core isn't currently idle (a no-op in that case).
	Wake(core int)

	// MaskIRQ/UnmaskIRQ/EnableIRQ/EOI/InterruptID round out the
	// interrupt-controller surface spec.md §4.1 names.
	MaskIRQ(irq int)
	UnmaskIRQ(irq int)
	EnableIRQ(irq int, core int)
	EOI(irq int)
}
