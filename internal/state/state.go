// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package state holds the process-wide tracer state: the active
// allocator binding and its trace buffer. A single atomic.Pointer swap
// suffices, since the whole value is replaced wholesale on Create/Reset;
// the one in-place write is lifecycle.Bootstrap setting Allocator on the
// Global it has just created, before any hook is attached.
package state

import (
	"sync/atomic"

	"github.com/allog-project/allog/internal/allocator"
	"github.com/allog-project/allog/internal/trace"
)

// Global is the process-wide tracer state: which allocator family is
// bound, and where its events land.
type Global struct {
	Allocator allocator.Binding
	Buffer    *trace.Buffer
}

var current atomic.Pointer[Global]

// Create installs binding as the active state with a fresh Buffer,
// discarding whatever state was previously installed. Called once at
// Bootstrap.
func Create(binding allocator.Binding) *Global {
	g := &Global{Allocator: binding, Buffer: trace.NewBuffer()}
	current.Store(g)
	return g
}

// TryGet returns the active state, or (nil, false) if none has been
// installed yet. Safe to call before Bootstrap or after Reset, with no
// panic.
func TryGet() (*Global, bool) {
	g := current.Load()
	if g == nil {
		return nil, false
	}
	return g, true
}

// Reset replaces the active state with an inert Noop binding and a
// fresh, empty buffer, so that any hook still in flight after Shutdown
// observes a harmless placeholder rather than torn-down state.
func Reset() {
	current.Store(&Global{Allocator: allocator.Noop{}, Buffer: trace.NewBuffer()})
}
