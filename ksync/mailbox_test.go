package ksync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-argentum/kernel/sched"
)

// TestMailboxBackpressureWithSlowReceiver is spec.md §8 boundary
// scenario 4: capacity 4, one sender pushes 10 messages with a generous
// per-send timeout while one receiver drains slower than the sender
// produces. Every send must eventually succeed (none time out) and FIFO
// order must be preserved end to end.
func TestMailboxBackpressureWithSlowReceiver(t *testing.T) {
	s, arena := newTestMachine(t, 2, 4, 10)
	mb := NewMailbox(s, "backpressure", 8, 4)

	const n = 10
	sendResults := make([]bool, n)
	sendOutcomes := make([]sched.Result, n)
	done := make(chan struct{})

	spawn(s, arena, "sender", 2, func(c *sched.Core) {
		defer close(done)
		for i := 0; i < n; i++ {
			msg := make([]byte, 8)
			msg[0] = byte(i)
			newCore, res, ok := mb.Send(c, msg, 500*time.Millisecond, sched.Wakeable)
			c = newCore
			sendOutcomes[i] = res
			sendResults[i] = ok
		}
	})

	received := make([]byte, 0, n)
	recvDone := make(chan struct{})
	spawn(s, arena, "receiver", 2, func(c *sched.Core) {
		defer close(recvDone)
		buf := make([]byte, 8)
		for i := 0; i < n; i++ {
			time.Sleep(15 * time.Millisecond) // drains slower than the sender produces
			newCore, res, ok := mb.Receive(c, buf, time.Second, sched.Wakeable)
			c = newCore
			require.True(t, ok, "receive %d must succeed", i)
			require.Equal(t, sched.Woken, res)
			received = append(received, buf[0])
		}
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sender never finished pushing all messages")
	}
	select {
	case <-recvDone:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver never drained all messages")
	}

	for i := 0; i < n; i++ {
		assert.True(t, sendResults[i], "send %d must eventually succeed", i)
		assert.Equal(t, sched.Woken, sendOutcomes[i], "send %d must not time out", i)
	}

	require.Len(t, received, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), received[i], "mailbox must preserve FIFO order")
	}
}

// TestMailboxSendTimesOutWhenFullAndUndrained confirms the documented
// timeout behavior: Send against a permanently full mailbox with no
// receiver returns TimedOut rather than blocking forever.
func TestMailboxSendTimesOutWhenFullAndUndrained(t *testing.T) {
	s, arena := newTestMachine(t, 1, 4, 10)
	mb := NewMailbox(s, "fills-up", 4, 1)

	filled := make(chan struct{})
	spawn(s, arena, "filler", 2, func(c *sched.Core) {
		msg := []byte{1, 2, 3, 4}
		_, res, ok := mb.Send(c, msg, 0, sched.Wakeable)
		require.Equal(t, sched.Woken, res)
		require.True(t, ok)
		close(filled)
	})

	select {
	case <-filled:
	case <-time.After(2 * time.Second):
		t.Fatal("filler never filled the mailbox")
	}

	resCh := make(chan sched.Result, 1)
	spawn(s, arena, "blocked-sender", 2, func(c *sched.Core) {
		msg := []byte{5, 6, 7, 8}
		_, res, ok := mb.Send(c, msg, 30*time.Millisecond, sched.Wakeable)
		require.False(t, ok)
		resCh <- res
	})

	select {
	case res := <-resCh:
		assert.Equal(t, sched.TimedOut, res)
	case <-time.After(2 * time.Second):
		t.Fatal("Send never timed out against a full, undrained mailbox")
	}
}

// mailboxOutcome carries a Send/Receive result across a goroutine
// boundary in the negative-timeout test below.
type mailboxOutcome struct {
	res sched.Result
	ok  bool
}

// TestMailboxNegativeTimeoutWouldBlockImmediately is spec.md §7 class 4:
// a negative timeout against a full (Send) or empty (Receive) mailbox
// must fail immediately with ok=false, never parking the caller — the
// only non-error would-block surface in this system.
func TestMailboxNegativeTimeoutWouldBlockImmediately(t *testing.T) {
	s, arena := newTestMachine(t, 1, 4, 10)
	mb := NewMailbox(s, "would-block", 4, 1)

	recvOnEmpty := make(chan mailboxOutcome, 1)
	spawn(s, arena, "recv-on-empty", 2, func(c *sched.Core) {
		buf := make([]byte, 4)
		_, res, ok := mb.Receive(c, buf, -1, sched.Wakeable)
		recvOnEmpty <- mailboxOutcome{res, ok}
	})
	select {
	case got := <-recvOnEmpty:
		assert.False(t, got.ok, "Receive against an empty mailbox with a negative timeout must report ok=false")
		assert.Equal(t, sched.Woken, got.res, "a WOULD_BLOCK immediate failure is not a timeout or cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("Receive with a negative timeout blocked instead of failing immediately")
	}

	filled := make(chan struct{})
	spawn(s, arena, "filler", 2, func(c *sched.Core) {
		_, res, ok := mb.Send(c, []byte{9, 9, 9, 9}, 0, sched.Wakeable)
		require.Equal(t, sched.Woken, res)
		require.True(t, ok)
		close(filled)
	})
	select {
	case <-filled:
	case <-time.After(2 * time.Second):
		t.Fatal("filler never filled the mailbox")
	}

	sendOnFull := make(chan mailboxOutcome, 1)
	spawn(s, arena, "send-on-full", 2, func(c *sched.Core) {
		_, res, ok := mb.Send(c, []byte{1, 2, 3, 4}, -1, sched.Wakeable)
		sendOnFull <- mailboxOutcome{res, ok}
	})
	select {
	case got := <-sendOnFull:
		assert.False(t, got.ok, "Send against a full mailbox with a negative timeout must report ok=false")
		assert.Equal(t, sched.Woken, got.res, "a WOULD_BLOCK immediate failure is not a timeout or cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("Send with a negative timeout blocked instead of failing immediately")
	}
}
