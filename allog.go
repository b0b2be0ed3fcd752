// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package allog is the public entry point of the in-process allocator
// tracer: Bootstrap attaches hooks per the configured allocator family,
// Shutdown detaches them and writes the trace. A native tracer would run
// these from shared-library ctor/dtor hooks; a Go program calls them
// explicitly, typically Bootstrap early in main and Shutdown deferred or
// hooked to a termination signal via InstallSignalShutdown.
package allog

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/allog-project/allog/internal/interceptor"
	"github.com/allog-project/allog/internal/lifecycle"
	"github.com/allog-project/allog/internal/logx"
	"github.com/allog-project/allog/internal/metrics"
)

// Options is the host-supplied configuration for Bootstrap. The
// instrumentation engine and symbol resolver are external collaborators
// the caller must provide.
type Options struct {
	Interceptor interceptor.Interceptor
	Resolver    interceptor.SymbolResolver
	ConfigPath  string
	OutputPath  string
	// Metrics, when set, registers Prometheus counters under it. Pass
	// metrics.New() to enable; leave nil to disable entirely.
	Metrics *metrics.Registry
	// PruneInterval and PruneIdleFor bound how quickly the pending
	// store's per-goroutine bookkeeping is reclaimed after a goroutine
	// stops calling traced allocator functions (Go exposes no
	// goroutine-exit hook to free it eagerly). Zero keeps the package
	// defaults.
	PruneInterval time.Duration
	PruneIdleFor  time.Duration
}

var (
	mu     sync.Mutex
	active *lifecycle.Handle
)

// Bootstrap attaches the tracer's hooks. Calling it again while a
// previous Bootstrap is still active returns an error rather than
// silently leaking the first attachment.
func Bootstrap(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if active != nil {
		return fmt.Errorf("allog: already bootstrapped")
	}

	h, err := lifecycle.Bootstrap(lifecycle.Options{
		Interceptor:   opts.Interceptor,
		Resolver:      opts.Resolver,
		ConfigPath:    opts.ConfigPath,
		OutputPath:    opts.OutputPath,
		Metrics:       opts.Metrics,
		PruneInterval: opts.PruneInterval,
		PruneIdleFor:  opts.PruneIdleFor,
	})
	if err != nil {
		return err
	}
	active = h
	return nil
}

// Shutdown detaches the tracer's hooks and writes the trace file. It is
// a no-op if Bootstrap was never called or Shutdown already ran.
func Shutdown() error {
	mu.Lock()
	h := active
	active = nil
	mu.Unlock()

	if h == nil {
		return nil
	}
	return lifecycle.Shutdown(h)
}

// InstallSignalShutdown spawns a goroutine that calls Shutdown when the
// process receives SIGINT or SIGTERM, then re-raises the signal with its
// default disposition so the process still exits the way it would have
// without this tracer installed. Intended for host programs with no
// existing signal handling of their own; one that already handles
// termination signals should call Shutdown directly from its own
// handler instead.
func InstallSignalShutdown() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		if err := Shutdown(); err != nil {
			logx.Errorf("shutdown on signal %v: %v", sig, err)
		}
		signal.Reset(sig.(syscall.Signal))
		_ = syscall.Kill(syscall.Getpid(), sig.(syscall.Signal))
	}()
}
