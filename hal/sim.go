package hal

import "sync"

// SimController is the in-process HAL backend. Each core's Idle/Wake
// pair is a condition variable rather than a real WFI instruction; IRQ
// masking is tracked per line rather than programmed into a GIC.
type SimController struct {
	mu sync.Mutex

	numCPU     int
	irqEnabled []bool
	idleWoken  []bool
	idleCond   []*sync.Cond

	maskedIRQ map[int]bool
}

// NewSimController builds a simulated controller for numCPU cores, all
// starting with interrupts disabled (the reset state a real core boots
// into before core_init_percpu runs).
func NewSimController(numCPU int) *SimController {
	c := &SimController{
		numCPU:     numCPU,
		irqEnabled: make([]bool, numCPU),
		idleWoken:  make([]bool, numCPU),
		idleCond:   make([]*sync.Cond, numCPU),
		maskedIRQ:  make(map[int]bool),
	}
	for i := range c.idleCond {
		c.idleCond[i] = sync.NewCond(&c.mu)
	}
	return c
}

func (c *SimController) NumCPU() int { return c.numCPU }

func (c *SimController) IRQEnable(core int) {
	c.mu.Lock()
	c.irqEnabled[core] = true
	c.mu.Unlock()
}

func (c *SimController) IRQDisable(core int) {
	c.mu.Lock()
	c.irqEnabled[core] = false
	c.mu.Unlock()
}

func (c *SimController) IRQEnabled(core int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.irqEnabled[core]
}

func (c *SimController) SendIPI(from, to int) {
	c.Wake(to)
}

func (c *SimController) Idle(core int) {
	c.mu.Lock()
	for !c.idleWoken[core] {
		c.idleCond[core].Wait()
	}
	c.idleWoken[core] = false
	c.mu.Unlock()
}

func (c *SimController) Wake(core int) {
	c.mu.Lock()
	c.idleWoken[core] = true
	c.idleCond[core].Signal()
	c.mu.Unlock()
}

func (c *SimController) MaskIRQ(irq int) {
	c.mu.Lock()
	c.maskedIRQ[irq] = true
	c.mu.Unlock()
}

func (c *SimController) UnmaskIRQ(irq int) {
	c.mu.Lock()
	c.maskedIRQ[irq] = false
	c.mu.Unlock()
}

func (c *SimController) EnableIRQ(irq int, core int) {
	// The simulator delivers every IRQ to whichever core calls
	// irq.Dispatcher.Dispatch; EnableIRQ only exists so callers can express
	// routing intent, mirroring the GIC's per-IRQ target-CPU register.
}

func (c *SimController) EOI(irq int) {
	// No physical interrupt controller to acknowledge in the simulator.
}
