// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package fake is a pure-Go reference implementation of the
// interceptor.Interceptor contract. It does not hook a real process;
// callers drive it explicitly through Call, which invokes whatever
// listener is currently attached at a given address with caller-supplied
// arguments and a caller-supplied backtrace. It exists so the rest of
// this module, and cmd/allogdemo, can be exercised without depending on
// an external dynamic-instrumentation engine.
package fake

import (
	"fmt"
	"sync"

	"github.com/allog-project/allog/internal/interceptor"
	"github.com/allog-project/allog/internal/trace"
)

// Resolver is a fixed name -> address table, standing in for a real
// symbol resolver (e.g. dlsym against a loaded shared object).
type Resolver struct {
	exports map[string]trace.Address
}

// NewResolver builds a Resolver from a symbol-name -> address table.
func NewResolver(exports map[string]trace.Address) *Resolver {
	table := make(map[string]trace.Address, len(exports))
	for k, v := range exports {
		table[k] = v
	}
	return &Resolver{exports: table}
}

func (r *Resolver) FindExport(name string) (trace.Address, bool) {
	a, ok := r.exports[name]
	return a, ok
}

type invocation struct {
	args        []uint64
	returnValue uint64
	backtrace   []trace.Address
}

func (i *invocation) Arg(n int) uint64 {
	if n < 0 || n >= len(i.args) {
		return 0
	}
	return i.args[n]
}

func (i *invocation) ReturnValue() uint64        { return i.returnValue }
func (i *invocation) Backtrace() []trace.Address { return i.backtrace }

type listenerHandle struct {
	i    *Interceptor
	addr trace.Address
}

func (h *listenerHandle) Detach() {
	h.i.mu.Lock()
	defer h.i.mu.Unlock()
	delete(h.i.listeners, h.addr)
}

// Interceptor is a map from address to currently-attached listener,
// guarded by a plain mutex: unlike the hot allocation path this package
// traces, attach/detach/Call here happen at a rate where blocking is
// harmless, and there is exactly one of these per test or demo process.
type Interceptor struct {
	mu        sync.Mutex
	listeners map[trace.Address]interceptor.InvocationListener
}

// New returns an empty Interceptor with nothing attached.
func New() *Interceptor {
	return &Interceptor{listeners: make(map[trace.Address]interceptor.InvocationListener)}
}

func (i *Interceptor) Attach(addr trace.Address, listener interceptor.InvocationListener) (interceptor.ListenerHandle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.listeners[addr]; exists {
		return nil, fmt.Errorf("fake: address %#x already has an attached listener", addr)
	}
	i.listeners[addr] = listener
	return &listenerHandle{i: i, addr: addr}, nil
}

// Replace is not used by this module's hook sets (they only ever Attach)
// and always fails, so a caller relying on it notices immediately rather
// than silently doing nothing.
func (i *Interceptor) Replace(addr trace.Address, newFn trace.Address) (interceptor.HookHandle, error) {
	return nil, fmt.Errorf("fake: Replace is not supported")
}

// Call drives the listener attached at addr, calling OnEnter then
// OnLeave with a shared InvocationContext built from args, returnValue,
// and backtrace. It reports whether a listener was attached at all.
func (i *Interceptor) Call(addr trace.Address, args []uint64, returnValue uint64, backtrace []trace.Address) bool {
	i.mu.Lock()
	listener, ok := i.listeners[addr]
	i.mu.Unlock()
	if !ok {
		return false
	}

	ctx := &invocation{args: args, returnValue: returnValue, backtrace: backtrace}
	listener.OnEnter(ctx)
	listener.OnLeave(ctx)
	return true
}
