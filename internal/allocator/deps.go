// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package allocator

import (
	"github.com/allog-project/allog/internal/interceptor"
	"github.com/allog-project/allog/internal/pending"
	"github.com/allog-project/allog/internal/trace"
)

// Interceptor is the narrow slice of interceptor.Interceptor a family
// needs to attach its listeners.
type Interceptor = interceptor.Interceptor

// Resolver is the narrow slice of interceptor.SymbolResolver a family
// needs.
type Resolver = interceptor.SymbolResolver

// Committer is the narrow slice of trace.Buffer a family needs: commit a
// finished event with its captured callstack.
type Committer interface {
	Add(event trace.Event, callstack trace.Callstack)
}

// PendingStore is the narrow slice of pending.Store a family needs: a
// non-blocking per-goroutine borrow.
type PendingStore interface {
	Get() (*pending.Handle, bool)
}

// MetricsSink is the narrow slice of metrics.Registry a family needs.
// Optional: a nil MetricsSink in Dependencies disables metrics for that
// binding without any extra branching at call sites (methods below are
// no-ops on a nil receiver check at the caller).
type MetricsSink interface {
	CommitInc(target string)
	DroppedInc(target, reason string)
}
