// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Command allogdemo drives the tracer against the fake interceptor: it
// bootstraps allog, simulates a handful of malloc/free call pairs, and
// shuts down, so the full pipeline can be exercised without a real
// dynamic-instrumentation engine attached to a real process.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/allog-project/allog"
	"github.com/allog-project/allog/internal/interceptor/fake"
	"github.com/allog-project/allog/internal/metrics"
	"github.com/allog-project/allog/internal/trace"
)

var cli struct {
	Config  string `help:"Path to the allog TOML config." default:"allog.toml"`
	Output  string `help:"Path to write the JSON trace to." default:"allog.json"`
	Calls   int    `help:"Number of simulated malloc/free pairs to drive." default:"8"`
	Metrics bool   `help:"Print the Prometheus counter values before exiting." default:"false"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("allogdemo"),
		kong.Description("Exercises the allocator tracer against a simulated process."),
	)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if _, err := os.Stat(cli.Config); os.IsNotExist(err) {
		if err := os.WriteFile(cli.Config, []byte("allocator = \"malloc\"\n"), 0o644); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}

	exports := map[string]trace.Address{
		"malloc":   0x1000,
		"calloc":   0x2000,
		"memalign": 0x3000,
		"realloc":  0x4000,
		"free":     0x5000,
	}
	it := fake.New()
	resolver := fake.NewResolver(exports)

	reg := metrics.New()

	if err := allog.Bootstrap(allog.Options{
		Interceptor: it,
		Resolver:    resolver,
		ConfigPath:  cli.Config,
		OutputPath:  cli.Output,
		Metrics:     reg,
	}); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	simulate(it, cli.Calls)

	if err := allog.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if cli.Metrics {
		printMetrics(reg)
	}

	fmt.Printf("wrote trace to %s\n", cli.Output)
	return nil
}

// printMetrics dumps every gathered counter/gauge sample, label set and
// all, as a quick sanity check that the hooks actually incremented them.
func printMetrics(reg *metrics.Registry) {
	families, err := reg.Gatherer().Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gathering metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels string
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf("%s=%s ", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.Counter != nil:
				fmt.Printf("%s{%s} %g\n", mf.GetName(), labels, m.Counter.GetValue())
			case m.Gauge != nil:
				fmt.Printf("%s{%s} %g\n", mf.GetName(), labels, m.Gauge.GetValue())
			}
		}
	}
}

// simulate drives n malloc/free pairs through the fake interceptor, as a
// stand-in for a real process making those calls under a real engine.
func simulate(it *fake.Interceptor, n int) {
	for i := 0; i < n; i++ {
		addr := trace.Address(0x7f0000000000 + uint64(i)*0x1000)
		backtrace := []trace.Address{trace.Address(0x400000 + i), 0x400100, 0x400200}

		it.Call(0x1000, []uint64{64}, uint64(addr), backtrace)
		it.Call(0x5000, []uint64{uint64(addr)}, 0, backtrace)
	}
}
