// Package kpanic formats the kernel's programming-error panics.
//
// Contract violations (spec.md error taxonomy class 1: nested spinlock
// self-deadlock, unlock by a non-owner, IRQ-save underflow, sleeping with a
// spinlock held, re-initializing a live primitive) are unrecoverable and are
// reported with a source location and a short call-chain, mirroring the
// teacher's own runtimePanic convention in src/internal/task and
// src/sync/mutex.go.
package kpanic

import (
	"fmt"
	"runtime"
	"strings"
)

// Contract panics with msg, a caller location, and up to depth further
// frames of call-chain. It never returns.
func Contract(msg string, depth int) {
	var b strings.Builder
	b.WriteString("kernel: ")
	b.WriteString(msg)

	pcs := make([]uintptr, depth+1)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for i := 0; i < n; i++ {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "\n\tat %s\n\t\t%s:%d", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	panic(b.String())
}
