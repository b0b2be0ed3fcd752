// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package metrics exposes optional Prometheus counters for the tracer
// itself: one counter per traced target, plus a gauge for the size of
// the committed trace. These are ambient observability, not part of the
// wire trace format; a host process that never registers a Prometheus
// handler pays nothing beyond the counter increments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters this package exposes, scoped to its own
// prometheus.Registry so embedding a tracer never collides with a host
// application's default registry or panics on double-registration across
// repeated Bootstrap/Shutdown cycles in the same process.
type Registry struct {
	registry *prometheus.Registry
	commits  *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	events   prometheus.Gauge
}

// New builds a Registry with all metrics registered and zeroed.
func New() *Registry {
	reg := prometheus.NewRegistry()

	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "allog",
		Name:      "commits_total",
		Help:      "Allocator events committed to the trace buffer, by logical target.",
	}, []string{"target"})

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "allog",
		Name:      "dropped_total",
		Help:      "On-enter/on-leave invocations that did not result in a committed event, by logical target and reason.",
	}, []string{"target", "reason"})

	events := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "allog",
		Name:      "buffered_events",
		Help:      "Number of events currently held in the trace buffer.",
	})

	reg.MustRegister(commits, dropped, events)

	return &Registry{registry: reg, commits: commits, dropped: dropped, events: events}
}

// Registerer exposes the underlying prometheus.Registerer so a host
// process can fold these metrics into its own /metrics endpoint.
func (r *Registry) Registerer() prometheus.Registerer { return r.registry }

// Gatherer exposes the underlying prometheus.Gatherer for the same
// reason.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// CommitInc records a committed event for target.
func (r *Registry) CommitInc(target string) {
	r.commits.WithLabelValues(target).Inc()
}

// DroppedInc records a dropped invocation for target, tagged with why it
// was dropped. The allocator hooks report "reentrant" when an on-leave
// cannot borrow the pending store (a reentrant call or a closed store)
// and "no_pending" when it finds no pending entry to pop.
func (r *Registry) DroppedInc(target, reason string) {
	r.dropped.WithLabelValues(target, reason).Inc()
}

// SetBufferedEvents reports the current size of the trace buffer.
func (r *Registry) SetBufferedEvents(n int) {
	r.events.Set(float64(n))
}
