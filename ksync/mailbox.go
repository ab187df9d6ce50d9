package ksync

import (
	"time"

	"github.com/go-argentum/kernel/internal/spinlock"
	"github.com/go-argentum/kernel/internal/waitqueue"
	"github.com/go-argentum/kernel/sched"
)

// Mailbox is a fixed-element-size, fixed-capacity ring buffer with
// blocking send/receive, per spec.md §3/§4.8. Invariant: the senders
// queue is non-empty only while the buffer is full, and the receivers
// queue only while it is empty (enforced by the retry loop below: a
// woken sender/receiver rechecks the condition rather than assuming the
// slot it was woken for is still there, since a concurrent caller can
// race in and claim a just-freed slot first — the same Mesa-style retest
// spec.md's condvar contract requires, applied here because a mailbox
// slot, unlike a mutex's ownership word, can't be handed to a specific
// waiter without that waiter's own stack supplying the message bytes).
// Messages are copied by value; callers supply their own storage.
type Mailbox struct {
	name string
	sl   *spinlock.Spinlock
	s    *sched.Scheduler

	senders   waitqueue.Queue
	receivers waitqueue.Queue

	ring [][]byte
	head int
	len  int

	elemSize int
}

// NewMailbox returns an empty mailbox holding up to capacity messages of
// exactly elemSize bytes each.
func NewMailbox(s *sched.Scheduler, name string, elemSize, capacity int) *Mailbox {
	return &Mailbox{
		name:     name,
		sl:       spinlock.New("mailbox:" + name),
		s:        s,
		ring:     make([][]byte, capacity),
		elemSize: elemSize,
	}
}

func (mb *Mailbox) cap() int { return len(mb.ring) }

// Send copies msg (which must be exactly elemSize bytes) into the ring
// tail. If the buffer is full, it blocks according to mode/timeout.
//
// Capacity failure (spec.md §7 class 4): if the buffer is full and
// timeout is negative, Send returns immediately with ok=false and result
// Woken rather than parking — the only non-error would-block surface in
// this system. Receive does the same on an empty buffer.
func (mb *Mailbox) Send(c *sched.Core, msg []byte, timeout time.Duration, mode sched.SleepMode) (*sched.Core, sched.Result, bool) {
	if len(msg) != mb.elemSize {
		contractViolation("mailbox: " + mb.name + ": Send message size mismatch")
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	c.Lock(mb.sl)
	for mb.len == mb.cap() {
		if timeout < 0 {
			c.Unlock(mb.sl)
			return c, sched.Woken, false
		}
		remaining := timeout
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				c.Unlock(mb.sl)
				return c, sched.TimedOut, false
			}
		}
		newCore, res := mb.s.Sleep(c, &mb.senders, mb.sl, remaining, mode)
		c = newCore
		if res != sched.Woken {
			c.Unlock(mb.sl)
			return c, res, false
		}
		// Re-loop: the slot we were woken for may have been claimed by a
		// concurrent Send that acquired mb.sl first.
	}

	tail := (mb.head + mb.len) % mb.cap()
	buf := make([]byte, mb.elemSize)
	copy(buf, msg)
	mb.ring[tail] = buf
	mb.len++

	mb.s.WakeOne(c, &mb.receivers)
	c.Unlock(mb.sl)
	return c, sched.Woken, true
}

// Receive copies the head message into buf (which must be at least
// elemSize bytes) and advances the ring. Symmetric to Send.
func (mb *Mailbox) Receive(c *sched.Core, buf []byte, timeout time.Duration, mode sched.SleepMode) (*sched.Core, sched.Result, bool) {
	if len(buf) < mb.elemSize {
		contractViolation("mailbox: " + mb.name + ": Receive buffer too small")
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	c.Lock(mb.sl)
	for mb.len == 0 {
		if timeout < 0 {
			c.Unlock(mb.sl)
			return c, sched.Woken, false
		}
		remaining := timeout
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				c.Unlock(mb.sl)
				return c, sched.TimedOut, false
			}
		}
		newCore, res := mb.s.Sleep(c, &mb.receivers, mb.sl, remaining, mode)
		c = newCore
		if res != sched.Woken {
			c.Unlock(mb.sl)
			return c, res, false
		}
	}

	copy(buf, mb.ring[mb.head])
	mb.ring[mb.head] = nil
	mb.head = (mb.head + 1) % mb.cap()
	mb.len--

	mb.s.WakeOne(c, &mb.senders)
	c.Unlock(mb.sl)
	return c, sched.Woken, true
}

// Len reports the number of messages currently buffered.
func (mb *Mailbox) Len(c *sched.Core) int {
	c.Lock(mb.sl)
	defer c.Unlock(mb.sl)
	return mb.len
}
