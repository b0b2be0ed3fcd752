// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package lifecycle orchestrates the tracer's startup and teardown
// bracket: load config, resolve symbols, attach hooks, and on the way
// out, detach hooks and serialize the trace. A native tracer would run
// this from ctor/dtor hooks fired by the dynamic loader; Go has no such
// hook, so a host program calls Bootstrap and Shutdown explicitly.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/allog-project/allog/internal/allocator"
	"github.com/allog-project/allog/internal/config"
	"github.com/allog-project/allog/internal/interceptor"
	"github.com/allog-project/allog/internal/logx"
	"github.com/allog-project/allog/internal/metrics"
	"github.com/allog-project/allog/internal/pending"
	"github.com/allog-project/allog/internal/state"
)

// Defaults for the pending store's idle-entry pruning loop (see
// pending.Store.StartPruning): frequent and patient enough that a
// long-running traced server's per-goroutine bookkeeping stays bounded
// without discarding an entry still in active, if infrequent, use.
const (
	defaultPruneInterval = time.Minute
	defaultPruneIdleFor  = 10 * time.Minute
)

// Options collects what Bootstrap needs beyond the process environment.
// The instrumentation engine and symbol resolver are external
// collaborators the host supplies.
type Options struct {
	Interceptor interceptor.Interceptor
	Resolver    interceptor.SymbolResolver
	// ConfigPath overrides config.PathFromEnv's result, mainly for tests.
	ConfigPath string
	// OutputPath overrides the output path the same way.
	OutputPath string
	// Metrics is optional; nil disables Prometheus counters entirely.
	Metrics *metrics.Registry
	// PruneInterval and PruneIdleFor override the pending store's idle
	// entry pruning cadence; zero keeps the package defaults.
	PruneInterval time.Duration
	PruneIdleFor  time.Duration
}

// Handle is what Bootstrap returns: everything Shutdown needs to tear
// the tracer back down.
type Handle struct {
	binding     allocator.Binding
	pending     *pending.Store
	outputPath  string
	metrics     *metrics.Registry
	stopPruning context.CancelFunc
}

// Bootstrap loads config, builds the pending store and trace buffer,
// and attaches the configured allocator family's hooks. A config load
// failure is the only fatal error; every per-target attach failure after
// that point is logged and skipped.
func Bootstrap(opts Options) (*Handle, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.PathFromEnv(config.EnvConfigPath, config.DefaultConfigPath)
	}
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = config.PathFromEnv(config.EnvOutputPath, config.DefaultOutputPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: bootstrap: %w", err)
	}

	store := pending.NewStore()
	// A placeholder Noop reserves the slot so the buffer it carries
	// exists before the real binding (which needs that buffer) is
	// constructed.
	global := state.Create(allocator.Noop{})

	deps := allocator.Dependencies{
		Interceptor: opts.Interceptor,
		Resolver:    opts.Resolver,
		Pending:     store,
		Buffer:      global.Buffer,
	}
	if opts.Metrics != nil {
		deps.Metrics = opts.Metrics
	}

	binding := allocator.New(cfg, deps)
	global.Allocator = binding

	if err := binding.Init(cfg); err != nil {
		return nil, fmt.Errorf("lifecycle: bootstrap: attaching %s hooks: %w", cfg.Allocator, err)
	}

	logx.Infof("initialized (allocator=%s)", cfg.Allocator)

	pruneInterval := opts.PruneInterval
	if pruneInterval == 0 {
		pruneInterval = defaultPruneInterval
	}
	pruneIdleFor := opts.PruneIdleFor
	if pruneIdleFor == 0 {
		pruneIdleFor = defaultPruneIdleFor
	}
	pruneCtx, stopPruning := context.WithCancel(context.Background())
	store.StartPruning(pruneCtx, pruneInterval, pruneIdleFor)

	return &Handle{
		binding:     binding,
		pending:     store,
		outputPath:  outputPath,
		metrics:     opts.Metrics,
		stopPruning: stopPruning,
	}, nil
}

// Shutdown detaches every hook, serializes the accumulated trace to the
// configured output path, and resets the global state to an inert
// placeholder so any hook invocation still in flight when Shutdown
// returns lands harmlessly. Serialization must follow detach, and detach
// must follow the last event commit; the engine's detach barrier
// guarantees the latter.
func Shutdown(h *Handle) error {
	if h == nil {
		return nil
	}

	if h.stopPruning != nil {
		h.stopPruning()
	}

	if err := h.binding.Fini(); err != nil {
		logx.Errorf("detaching hooks: %v", err)
	}

	g, ok := state.TryGet()
	if !ok {
		logx.Errorf("no active state to finalize")
		return nil
	}

	// Runs on every return below, so a failed trace write still leaves the
	// store closed and the state reset.
	defer func() {
		h.pending.Close()
		state.Reset()
	}()

	if h.metrics != nil {
		h.metrics.SetBufferedEvents(g.Buffer.Len())
	}

	f, err := os.Create(h.outputPath)
	if err != nil {
		err = fmt.Errorf("lifecycle: shutdown: opening %s: %w", h.outputPath, err)
		logx.Errorf("%v", err)
		return err
	}
	defer f.Close()

	if err := g.Buffer.Serialize(f); err != nil {
		err = fmt.Errorf("lifecycle: shutdown: serializing trace: %w", err)
		logx.Errorf("%v", err)
		return err
	}

	logx.Infof("finalized (events=%d, output=%s)", g.Buffer.Len(), h.outputPath)
	return nil
}
