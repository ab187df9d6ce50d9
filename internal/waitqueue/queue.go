// Package waitqueue is the FIFO container of parked tasks spec.md §3
// names: "ordered sequence of tasks (FIFO)... every task on a queue is
// in SLEEPING state, and its blocked-on back-pointer equals this queue."
//
// Queue itself only holds structure; the actual park/wake operations
// that touch the scheduler's ready queues live in package sched, which
// imports this package. Keeping the FIFO here, free of scheduler
// knowledge, is the same split the teacher uses between
// src/internal/task/queue.go (pure list) and scheduler_cores.go
// (scheduling policy on top of it).
package waitqueue

import "github.com/go-argentum/kernel/internal/ktask"

type node struct {
	task *ktask.Task
	next *node
}

// Queue is a FIFO of tasks. The zero value is an empty, ready-to-use
// queue (folding in the original source's separate wchan primitive, per
// SPEC_FULL.md §4).
type Queue struct {
	head, tail *node
	byHandle   map[ktask.Handle]*node
	prevOf     map[ktask.Handle]*node
	len        int
}

func (q *Queue) init() {
	if q.byHandle == nil {
		q.byHandle = make(map[ktask.Handle]*node)
		q.prevOf = make(map[ktask.Handle]*node)
	}
}

// Enqueue appends t to the tail. The caller must hold whatever spinlock
// protects this queue (spec.md §3).
func (q *Queue) Enqueue(t *ktask.Task) {
	q.init()
	n := &node{task: t}
	if q.tail != nil {
		q.tail.next = n
	} else {
		q.head = n
	}
	q.prevOf[t.Handle] = q.tail
	q.tail = n
	q.byHandle[t.Handle] = n
	q.len++
}

// Dequeue removes and returns the head task, or nil if empty.
func (q *Queue) Dequeue() *ktask.Task {
	q.init()
	n := q.head
	if n == nil {
		return nil
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	} else {
		q.prevOf[q.head.task.Handle] = nil
	}
	delete(q.byHandle, n.task.Handle)
	delete(q.prevOf, n.task.Handle)
	q.len--
	return n.task
}

// Remove deletes t from the queue regardless of position (used by
// timeout and cancellation paths, which must be able to pull a task out
// of the middle of the FIFO). Reports whether t was found.
func (q *Queue) Remove(t *ktask.Task) bool {
	q.init()
	n, ok := q.byHandle[t.Handle]
	if !ok {
		return false
	}
	prev := q.prevOf[t.Handle]
	if prev == nil {
		q.head = n.next
	} else {
		prev.next = n.next
	}
	if n == q.tail {
		q.tail = prev
	}
	if n.next != nil {
		q.prevOf[n.next.task.Handle] = prev
	}
	delete(q.byHandle, t.Handle)
	delete(q.prevOf, t.Handle)
	q.len--
	return true
}

// Peek returns the head task without removing it, or nil if empty.
func (q *Queue) Peek() *ktask.Task {
	if q.head == nil {
		return nil
	}
	return q.head.task
}

// Len returns the number of tasks currently parked on the queue.
func (q *Queue) Len() int { return q.len }

// Empty reports whether the queue has no waiters.
func (q *Queue) Empty() bool { return q.len == 0 }

// All returns every task currently on the queue, head first, without
// mutating it. Intended for WakeAll and debug inspection.
func (q *Queue) All() []*ktask.Task {
	out := make([]*ktask.Task, 0, q.len)
	for n := q.head; n != nil; n = n.next {
		out = append(out, n.task)
	}
	return out
}
