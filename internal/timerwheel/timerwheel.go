// Package timerwheel is the tick counter and software timer list of
// spec.md §3/§4.9: a 64-bit monotonic tick count advanced by core 0's
// tick ISR, and an ordered list of timers whose callbacks run off the
// interrupt path in a dedicated serialized runner, grounded on the
// teacher's scheduler_cores.go timerQueue/timerQueueAdd bookkeeping and
// scheduler_threads.go's dedicated timerRunner goroutine.
package timerwheel

import (
	"sync"
)

// State is a Timer's position in the state machine of spec.md §4.9.
type State int

const (
	None State = iota
	Inactive
	Active
	Running
)

func (s State) String() string {
	switch s {
	case None:
		return "NONE"
	case Inactive:
		return "INACTIVE"
	case Active:
		return "ACTIVE"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Callback is a timer's fire action. It runs on the wheel's dedicated
// runner goroutine, never on the tick ISR path, so it may take sleeping
// locks (spec.md §4.9: "this is important because callbacks may take
// sleeping locks").
type Callback func(arg any)

// Timer is a one-shot or periodic callback scheduled in ticks.
// Invariant: Active iff linked in the wheel's active list.
type Timer struct {
	mu sync.Mutex

	delay  uint64 // ticks remaining until next fire
	period uint64 // 0 = one-shot

	cb  Callback
	arg any

	state State

	// done signals callback completion for a racing Stop (spec.md §9's
	// resolution: Running + a completion condvar).
	done *sync.Cond
}

// newTimer is unexported: timers are created through Wheel.NewTimer so
// every live timer is known to exactly one wheel.
func newTimer(delay, period uint64, cb Callback, arg any) *Timer {
	t := &Timer{delay: delay, period: period, cb: cb, arg: arg, state: Inactive}
	t.done = sync.NewCond(&t.mu)
	return t
}

// State returns the timer's current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wheel owns the monotonic tick counter and the list of active timers,
// plus the dedicated goroutine that runs expired callbacks serialized
// and off the tick path.
type Wheel struct {
	mu     sync.Mutex
	tick   uint64
	active []*Timer

	fireCh chan *Timer
	stopCh chan struct{}
	runner sync.WaitGroup
}

// NewWheel starts a wheel and its callback-runner goroutine. Close must
// be called to shut the runner down cleanly (e.g. at kernel shutdown in
// tests).
func NewWheel() *Wheel {
	w := &Wheel{
		fireCh: make(chan *Timer, 64),
		stopCh: make(chan struct{}),
	}
	w.runner.Add(1)
	go w.runCallbacks()
	return w
}

// Close stops the callback runner and waits for it to drain.
func (w *Wheel) Close() {
	close(w.stopCh)
	w.runner.Wait()
}

// Tick returns the current monotonic tick count.
func (w *Wheel) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// NewTimer allocates a timer in state Inactive; it does not run until
// Start is called.
func (w *Wheel) NewTimer(delay, period uint64, cb Callback, arg any) *Timer {
	return newTimer(delay, period, cb, arg)
}

// Start links t into the wheel, transitioning Inactive/None → Active.
func (w *Wheel) Start(t *Timer) {
	t.mu.Lock()
	if t.state == Active || t.state == Running {
		t.mu.Unlock()
		return
	}
	t.state = Active
	t.mu.Unlock()

	w.mu.Lock()
	w.active = append(w.active, t)
	w.mu.Unlock()
}

// Stop unlinks t, transitioning Active → Inactive. If a callback is
// currently Running for t on another goroutine (a stop racing an
// expiring timer, spec.md §4.9/§9), Stop blocks until that invocation
// completes, then reports true ("was running"); otherwise it reports
// false.
func (w *Wheel) Stop(t *Timer) bool {
	t.mu.Lock()
	wasRunning := false
	for t.state == Running {
		wasRunning = true
		t.done.Wait()
	}
	if t.state == Active {
		t.state = Inactive
	}
	t.mu.Unlock()

	w.mu.Lock()
	w.removeLocked(t)
	w.mu.Unlock()
	return wasRunning
}

func (w *Wheel) removeLocked(t *Timer) {
	for i, cand := range w.active {
		if cand == t {
			w.active = append(w.active[:i], w.active[i+1:]...)
			return
		}
	}
}

// Advance runs one tick: decrement every active timer's remaining
// delay, and for each that reaches zero, reschedule (if periodic) or
// deactivate (if one-shot), then hand the callback to the runner
// goroutine. Called by exactly one designated core per spec.md §4.9
// step 2.
func (w *Wheel) Advance() {
	w.mu.Lock()
	w.tick++

	var fired []*Timer
	remaining := w.active[:0]
	for _, t := range w.active {
		t.mu.Lock()
		if t.delay > 0 {
			t.delay--
		}
		expired := t.delay == 0
		if expired {
			if t.period > 0 {
				t.delay = t.period
			}
			t.state = Running
			fired = append(fired, t)
		}
		t.mu.Unlock()
		if !expired || t.period > 0 {
			remaining = append(remaining, t)
		}
	}
	w.active = remaining
	w.mu.Unlock()

	for _, t := range fired {
		select {
		case w.fireCh <- t:
		case <-w.stopCh:
			return
		}
	}
}

// runCallbacks is the dedicated runner goroutine: it executes expired
// callbacks one at a time, off the tick path, so they may safely take
// sleeping locks.
func (w *Wheel) runCallbacks() {
	defer w.runner.Done()
	for {
		select {
		case t := <-w.fireCh:
			t.cb(t.arg)
			t.mu.Lock()
			if t.state == Running {
				if t.period > 0 {
					t.state = Active
				} else {
					t.state = Inactive
				}
			}
			t.done.Broadcast()
			t.mu.Unlock()
		case <-w.stopCh:
			return
		}
	}
}
