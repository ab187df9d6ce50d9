// Package klog is the kernel's trace logger: short, core-colored lines
// written to an ANSI-safe writer, grounded on the teacher's
// cpuColoredPrint convention in scheduler_cores.go. Strictly off the
// hot path — nothing in sched/spinlock/ksync logs unconditionally;
// callers pass a *Logger (or nil) explicitly where tracing is wanted.
package klog

import (
	"fmt"
	"io"
	"os"
	"sync"

	colorable "github.com/mattn/go-colorable"
)

var corePalette = []string{
	"\x1b[36m", // cyan
	"\x1b[35m", // magenta
	"\x1b[33m", // yellow
	"\x1b[32m", // green
	"\x1b[34m", // blue
	"\x1b[31m", // red
}

const resetColor = "\x1b[0m"

// Logger serializes writes to an ANSI-safe console, color-coding each
// line by the core id that produced it.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// New wraps os.Stdout with colorable.NewColorable, the same call the
// teacher's CLI uses for Windows-safe ANSI output.
func New() *Logger {
	return &Logger{w: colorable.NewColorable(os.Stdout)}
}

// NewWriter wraps an arbitrary writer, for tests that want to capture
// output instead of printing it.
func NewWriter(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Trace writes a single core-colored line: "[core N] message".
func (l *Logger) Trace(core int, format string, args ...any) {
	if l == nil {
		return
	}
	color := corePalette[core%len(corePalette)]
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s[core %d]%s %s\n", color, core, resetColor, fmt.Sprintf(format, args...))
}
