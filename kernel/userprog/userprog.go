// Package userprog demonstrates that task_create's entry boundary
// (spec.md §6) is opaque: a task's entry need not be a native Go
// function. Program wraps a WASM guest binary as a schedulable task
// entry, hosted by wazero exactly the way the teacher's own test suite
// (main_test.go) hosts compiled WASM output to exercise wasmexport/wasi
// calls — except here the host functions bound into the guest are this
// module's own primitives (mutex/semaphore/mailbox), not a test harness.
//
// This is a demo boundary exerciser (SPEC_FULL.md §2), not a general
// WASI sandbox: one guest instance per kernel task, a small fixed set of
// host imports, interpreter mode (no JIT) to keep the dependency surface
// identical to the teacher's own wazero usage.
package userprog

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aykevl/go-wasm"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/go-argentum/kernel/ksync"
	"github.com/go-argentum/kernel/sched"
)

// hostModuleName is the import module guest binaries bind their
// Argentum calls against, analogous to the teacher's "tester" host
// module in main_test.go.
const hostModuleName = "argentum"

// Program is a loaded (but not yet instantiated) WASM guest binary.
type Program struct {
	name  string
	wasm  []byte
	sem   *ksync.Semaphore
	mbox  *ksync.Mailbox
	mutex *ksync.Mutex
}

// Load returns a Program bound to the given guest binary and the
// kernel primitives its host imports will operate on. sem, mbox, and
// mutex may be nil if the guest doesn't use that import.
func Load(name string, wasm []byte, sem *ksync.Semaphore, mbox *ksync.Mailbox, mutex *ksync.Mutex) *Program {
	return &Program{name: name, wasm: wasm, sem: sem, mbox: mbox, mutex: mutex}
}

// TaskEntry returns a func(*sched.Core) suitable for kernel.TaskCreate:
// instantiating the runtime, binding the host module, and running the
// guest's _start, all on the calling task's own goroutine. c is threaded
// through every host import call so they drive the real Core-bearing
// primitive APIs (and, per sched's SMP discipline, callers must keep
// using whatever Core a blocking host call returns).
func (p *Program) TaskEntry() func(c *sched.Core) {
	return func(c *sched.Core) {
		if err := p.validateImports(); err != nil {
			fmt.Println(err)
			return
		}

		ctx := context.Background()
		rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
		defer rt.Close(ctx)

		wasi_snapshot_preview1.MustInstantiate(ctx, rt)

		cur := c // host closures below capture and mutate this, single-threaded within one guest instance
		p.bindHostModule(rt, ctx, &cur)

		cfg := wazero.NewModuleConfig().WithStartFunctions()
		mod, err := rt.InstantiateWithConfig(ctx, p.wasm, cfg)
		if err != nil {
			fmt.Printf("userprog %s: instantiate failed: %v\n", p.name, err)
			return
		}

		start := mod.ExportedFunction("_start")
		if start == nil {
			fmt.Printf("userprog %s: no _start export\n", p.name)
			return
		}
		if _, err := start.Call(ctx); err != nil {
			fmt.Printf("userprog %s: _start failed: %v\n", p.name, err)
		}
	}
}

// validateImports parses the raw guest binary with go-wasm — a binary-
// format parser, a different concern from wazero's execution engine,
// used the same way the teacher's own main_test.go parses a compiled
// output binary's import section to check it against an expected list —
// and rejects any declared import this Program isn't configured to
// satisfy before wazero ever attempts instantiation. Without this, a
// guest importing e.g. mailbox_send against a Program loaded with a nil
// mbox fails only once wazero's own "unresolved import" error surfaces at
// InstantiateWithConfig, with no indication of which primitive is
// missing.
func (p *Program) validateImports() error {
	module, err := wasm.Parse(bytes.NewReader(p.wasm))
	if err != nil {
		return fmt.Errorf("userprog %s: parse guest binary: %w", p.name, err)
	}
	for _, section := range module.Sections {
		imp, ok := section.(*wasm.SectionImport)
		if !ok {
			continue
		}
		for _, entry := range imp.Entries {
			if entry.Module == "wasi_snapshot_preview1" {
				continue
			}
			if entry.Module != hostModuleName {
				return fmt.Errorf("userprog %s: guest imports from unknown module %q", p.name, entry.Module)
			}
			if !p.provides(entry.Field) {
				return fmt.Errorf("userprog %s: guest imports %s.%s but was not loaded with that primitive bound", p.name, entry.Module, entry.Field)
			}
		}
	}
	return nil
}

// provides reports whether field names a host function bindHostModule
// will actually export, given which primitives this Program was loaded
// with.
func (p *Program) provides(field string) bool {
	switch field {
	case "sem_wait", "sem_post":
		return p.sem != nil
	case "mutex_lock", "mutex_unlock":
		return p.mutex != nil
	case "mailbox_send", "mailbox_recv":
		return p.mbox != nil
	default:
		return false
	}
}

// bindHostModule installs the small import surface guest code calls
// into: the semaphore, mailbox and mutex operations, each only where
// that primitive is configured. Each host function blocks the calling task exactly the
// way a native task calling the same ksync method would.
func (p *Program) bindHostModule(rt wazero.Runtime, ctx context.Context, cur **sched.Core) {
	b := rt.NewHostModuleBuilder(hostModuleName)

	if p.sem != nil {
		b.NewFunctionBuilder().WithFunc(func() {
			newCore, _ := p.sem.Get(*cur, 0)
			*cur = newCore
		}).Export("sem_wait")
		b.NewFunctionBuilder().WithFunc(func() {
			p.sem.Put(*cur)
		}).Export("sem_post")
	}

	if p.mutex != nil {
		b.NewFunctionBuilder().WithFunc(func() {
			newCore, _ := p.mutex.Lock(*cur)
			*cur = newCore
		}).Export("mutex_lock")
		b.NewFunctionBuilder().WithFunc(func() {
			p.mutex.Unlock(*cur)
		}).Export("mutex_unlock")
	}

	if p.mbox != nil {
		b.NewFunctionBuilder().WithFunc(func(mod api.Module, ptr, length uint32) int32 {
			buf, ok := mod.Memory().Read(ptr, length)
			if !ok {
				return -1
			}
			newCore, res, ok := p.mbox.Send(*cur, buf, 0, sched.Wakeable)
			*cur = newCore
			if !ok || res != sched.Woken {
				return -1
			}
			return 0
		}).Export("mailbox_send")
		b.NewFunctionBuilder().WithFunc(func(mod api.Module, ptr, length uint32) int32 {
			buf := make([]byte, length)
			newCore, res, ok := p.mbox.Receive(*cur, buf, 0, sched.Wakeable)
			*cur = newCore
			if !ok || res != sched.Woken {
				return -1
			}
			if !mod.Memory().Write(ptr, buf) {
				return -1
			}
			return 0
		}).Export("mailbox_recv")
	}

	if _, err := b.Instantiate(ctx); err != nil {
		fmt.Printf("userprog %s: host module bind failed: %v\n", p.name, err)
	}
}
