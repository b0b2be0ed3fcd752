// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package allocator wires a traced-allocator family's hook set to an
// interceptor.Interceptor. Binding is the common lifecycle every family
// implements; Noop and Malloc are the two supported families.
package allocator

import "github.com/allog-project/allog/internal/config"

// Binding is a traced allocator family's attach/detach lifecycle.
type Binding interface {
	// Init attaches whatever hooks this family defines, skipping any
	// target disabled or unresolvable per cfg. It never fails outright
	// (per-target failures are logged and skipped); the error return
	// exists for symmetry with Fini and future families that may need
	// it.
	Init(cfg *config.Config) error
	// Fini detaches every hook this family attached and logs final
	// per-target counts.
	Fini() error
}

// Noop is the allocator family that traces nothing, used as the
// fallback for an empty or unrecognized `allocator` config value and as
// the post-shutdown placeholder state installs to guarantee no further
// hook can resolve against torn-down state.
type Noop struct{}

func (Noop) Init(cfg *config.Config) error { return nil }
func (Noop) Fini() error                   { return nil }

// New builds the Binding for cfg.Allocator, falling back to Noop for an
// unrecognized family. New itself never errors; family construction is
// infallible, only Init/attach steps can fail per-target.
func New(cfg *config.Config, deps Dependencies) Binding {
	switch cfg.Allocator {
	case config.FamilyMalloc:
		return NewMalloc(deps)
	default:
		return Noop{}
	}
}

// Dependencies collects the collaborators every real Binding needs:
// the instrumentation engine, symbol resolution, the pending-call store,
// and the commit target. Bundled into one struct so New and family
// constructors don't grow a parameter per collaborator as families are
// added.
type Dependencies struct {
	Interceptor Interceptor
	Resolver    Resolver
	Pending     PendingStore
	Buffer      Committer
	// Metrics is optional; a nil value disables metrics for this binding.
	Metrics MetricsSink
}
