// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package interceptor defines the contracts for the external
// dynamic-instrumentation engine and the scoped-release helpers hook
// sets build on top of it. The only concrete implementation in this
// module is interceptor/fake, a pure-Go test double; a real engine
// binding (e.g. over cgo) is left to the host program.
package interceptor

import "github.com/allog-project/allog/internal/trace"

// SymbolResolver resolves an exported symbol name to the address it lives
// at in the traced process. Supplied by the host; this is the interface
// the rest of the module programs against.
type SymbolResolver interface {
	FindExport(name string) (trace.Address, bool)
}

// InvocationContext is what a listener receives on each on-enter/on-leave
// callback: argument access, the return value (meaningful only on
// leave), and a raw backtrace.
type InvocationContext interface {
	Arg(i int) uint64
	ReturnValue() uint64
	Backtrace() []trace.Address
}

// InvocationListener is attached to a function entry point; the engine
// invokes OnEnter when the traced function is called and OnLeave when it
// returns, on the same goroutine, with the same InvocationContext.
type InvocationListener interface {
	OnEnter(ctx InvocationContext)
	OnLeave(ctx InvocationContext)
}

// ListenerHandle owns an attachment made by Interceptor.Attach. Calling
// Detach reverts it; the engine guarantees that by the time Detach
// returns, every in-flight invocation of the listener has itself
// returned; this is the precondition that makes the lock discipline in
// trace.Buffer safe to rely on at shutdown.
type ListenerHandle interface {
	Detach()
}

// HookHandle owns a full function replacement made by Interceptor.Replace.
// Calling Revert restores the original function.
type HookHandle interface {
	Revert()
}

// Interceptor is the black-box instrumentation engine. Implementations
// are expected to be safe for concurrent use from arbitrary application
// goroutines: every traced call in the host process may invoke a
// listener concurrently.
type Interceptor interface {
	// Attach binds listener's OnEnter/OnLeave to calls of the function at
	// addr. The returned handle owns the attachment.
	Attach(addr trace.Address, listener InvocationListener) (ListenerHandle, error)
	// Replace installs newFn as a full replacement for the function at
	// addr. The returned handle owns the replacement.
	Replace(addr trace.Address, newFn trace.Address) (HookHandle, error)
}
