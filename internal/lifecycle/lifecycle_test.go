// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/allog-project/allog/internal/interceptor/fake"
	"github.com/allog-project/allog/internal/state"
	"github.com/allog-project/allog/internal/trace"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "allog.toml")
	doc := "allocator = \"malloc\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestBootstrapAttachesAndShutdownSerializes(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	outputPath := filepath.Join(dir, "trace.json")

	it := fake.New()
	resolver := fake.NewResolver(map[string]trace.Address{
		"malloc":   0x1000,
		"calloc":   0x2000,
		"memalign": 0x3000,
		"realloc":  0x4000,
		"free":     0x5000,
	})

	h, err := Bootstrap(Options{
		Interceptor: it,
		Resolver:    resolver,
		ConfigPath:  configPath,
		OutputPath:  outputPath,
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	it.Call(0x1000, []uint64{32}, 0xaaaa, []trace.Address{0x1})
	it.Call(0x5000, []uint64{0xaaaa}, 0, []trace.Address{0x2})

	if err := Shutdown(h); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	events, ok := doc["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("got events %v, want 2", doc["events"])
	}

	g, ok := state.TryGet()
	if !ok {
		t.Fatal("expected state to remain installed (as an inert placeholder) after Shutdown")
	}
	if g.Buffer.Len() != 0 {
		t.Errorf("expected a fresh empty buffer after Shutdown, got %d events", g.Buffer.Len())
	}

	if ok := it.Call(0x1000, []uint64{1}, 0, nil); ok {
		t.Error("expected malloc listener to be detached after Shutdown")
	}
}

func readTrace(t *testing.T, path string) ([]trace.Event, map[uint64]trace.Callstack) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening trace output: %v", err)
	}
	defer f.Close()
	events, callstacks, err := trace.Deserialize(f)
	if err != nil {
		t.Fatalf("parsing trace output: %v", err)
	}
	return events, callstacks
}

func TestNoopAllocatorYieldsEmptyTrace(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "allog.toml")
	if err := os.WriteFile(configPath, []byte("allocator = \"noop\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outputPath := filepath.Join(dir, "trace.json")

	it := fake.New()
	h, err := Bootstrap(Options{
		Interceptor: it,
		Resolver:    fake.NewResolver(map[string]trace.Address{"malloc": 0x1000}),
		ConfigPath:  configPath,
		OutputPath:  outputPath,
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	// Nothing is attached under the noop family, so the call finds no
	// listener at all.
	if ok := it.Call(0x1000, []uint64{32}, 0xaaaa, nil); ok {
		t.Error("expected no listener under the noop family")
	}

	if err := Shutdown(h); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	want := `{"events":[],"meta":{"callstack":{}}}` + "\n"
	if string(data) != want {
		t.Errorf("output = %q, want %q", data, want)
	}
}

func TestDisabledFreeTargetIsNeverHooked(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "allog.toml")
	doc := "allocator = \"malloc\"\n\n[targets]\nfree = \"\"\n"
	if err := os.WriteFile(configPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	outputPath := filepath.Join(dir, "trace.json")

	it := fake.New()
	h, err := Bootstrap(Options{
		Interceptor: it,
		Resolver: fake.NewResolver(map[string]trace.Address{
			"malloc": 0x1000,
			"free":   0x5000,
		}),
		ConfigPath: configPath,
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	it.Call(0x1000, []uint64{8}, 0xaaaa, []trace.Address{0x1})
	if ok := it.Call(0x5000, []uint64{0xaaaa}, 0, []trace.Address{0x2}); ok {
		t.Error("expected no listener on the disabled free target")
	}

	if err := Shutdown(h); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	events, _ := readTrace(t, outputPath)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Alloc == nil {
		t.Fatalf("got %+v, want a single Alloc event", events[0])
	}
}

func TestMissingSymbolSkipsOnlyThatTarget(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	outputPath := filepath.Join(dir, "trace.json")

	it := fake.New()
	// memalign deliberately absent from the export table.
	h, err := Bootstrap(Options{
		Interceptor: it,
		Resolver: fake.NewResolver(map[string]trace.Address{
			"malloc":  0x1000,
			"calloc":  0x2000,
			"realloc": 0x4000,
			"free":    0x5000,
		}),
		ConfigPath: configPath,
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Bootstrap must tolerate a missing symbol: %v", err)
	}

	if ok := it.Call(0x1000, []uint64{8}, 0xaaaa, nil); !ok {
		t.Error("expected malloc to be attached despite memalign being unresolvable")
	}

	if err := Shutdown(h); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	events, _ := readTrace(t, outputPath)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestTwoGoroutinesPreservePerGoroutineOrder(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	outputPath := filepath.Join(dir, "trace.json")

	it := fake.New()
	h, err := Bootstrap(Options{
		Interceptor: it,
		Resolver: fake.NewResolver(map[string]trace.Address{
			"malloc": 0x1000,
			"free":   0x5000,
		}),
		ConfigPath: configPath,
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	const loops = 1000
	// Each goroutine drives a distinct single-frame backtrace, so its
	// events can be told apart afterward by callstack id.
	frames := []trace.Address{0x111, 0x222}
	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			backtrace := []trace.Address{frames[g]}
			for i := 0; i < loops; i++ {
				addr := uint64(0x10000*(g+1) + i)
				it.Call(0x1000, []uint64{16}, addr, backtrace)
				it.Call(0x5000, []uint64{addr}, 0, backtrace)
			}
		}(g)
	}
	wg.Wait()

	if err := Shutdown(h); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	events, callstacks := readTrace(t, outputPath)
	if len(events) != 4*loops {
		t.Fatalf("got %d events, want %d", len(events), 4*loops)
	}

	allocs, frees := 0, 0
	for _, e := range events {
		switch {
		case e.Alloc != nil:
			allocs++
		case e.Free != nil:
			frees++
		}
	}
	if allocs != 2*loops || frees != 2*loops {
		t.Fatalf("got %d allocs and %d frees, want %d each", allocs, frees, 2*loops)
	}

	for g, frame := range frames {
		id := trace.Callstack{frame}.ID()
		if _, ok := callstacks[id]; !ok {
			t.Fatalf("callstack id %#x missing from meta", id)
		}
		// Filtered by this goroutine's callstack id, events must follow
		// its program order exactly: alloc(i), free(i), alloc(i+1), ...
		base := uint64(0x10000 * (g + 1))
		next := uint64(0)
		wantAlloc := true
		for _, e := range events {
			switch {
			case e.Alloc != nil && e.Alloc.CallstackID == id:
				if !wantAlloc || uint64(e.Alloc.Address) != base+next {
					t.Fatalf("goroutine %d: out-of-order Alloc %#x (want index %d)", g, e.Alloc.Address, next)
				}
				wantAlloc = false
			case e.Free != nil && e.Free.CallstackID == id:
				if wantAlloc || uint64(e.Free.Address) != base+next {
					t.Fatalf("goroutine %d: out-of-order Free %#x (want index %d)", g, e.Free.Address, next)
				}
				wantAlloc = true
				next++
			}
		}
		if next != loops {
			t.Fatalf("goroutine %d: saw %d alloc/free pairs, want %d", g, next, loops)
		}
	}
}

func TestEventTimestampsFallInsideTheHookLifetime(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	outputPath := filepath.Join(dir, "trace.json")

	before := uint64(time.Now().UnixNano())

	it := fake.New()
	h, err := Bootstrap(Options{
		Interceptor: it,
		Resolver:    fake.NewResolver(map[string]trace.Address{"malloc": 0x1000}),
		ConfigPath:  configPath,
		OutputPath:  outputPath,
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	it.Call(0x1000, []uint64{8}, 0xaaaa, nil)
	it.Call(0x1000, []uint64{16}, 0xbbbb, nil)

	if err := Shutdown(h); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	after := uint64(time.Now().UnixNano())

	events, _ := readTrace(t, outputPath)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	var prev uint64
	for i, e := range events {
		ts := e.Alloc.Timestamp
		if ts < before || ts > after {
			t.Errorf("event %d: timestamp %d outside the hook lifetime [%d, %d]", i, ts, before, after)
		}
		if ts < prev {
			t.Errorf("event %d: timestamp %d went backwards (prev %d)", i, ts, prev)
		}
		prev = ts
	}
}

func TestBootstrapFailsOnMissingConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := Bootstrap(Options{
		Interceptor: fake.New(),
		Resolver:    fake.NewResolver(nil),
		ConfigPath:  filepath.Join(dir, "does-not-exist.toml"),
	})
	if err == nil {
		t.Fatal("expected Bootstrap to fail when the config file is missing")
	}
}

func TestShutdownIsSafeOnNilHandle(t *testing.T) {
	if err := Shutdown(nil); err != nil {
		t.Fatalf("Shutdown(nil): %v", err)
	}
}

func TestShutdownStopsPruningLoop(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	outputPath := filepath.Join(dir, "trace.json")

	h, err := Bootstrap(Options{
		Interceptor:   fake.New(),
		Resolver:      fake.NewResolver(nil),
		ConfigPath:    configPath,
		OutputPath:    outputPath,
		PruneInterval: time.Millisecond,
		PruneIdleFor:  0,
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if h.stopPruning == nil {
		t.Fatal("expected Bootstrap to start a pruning loop")
	}

	if err := Shutdown(h); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// Shutdown has already called stopPruning; like any
	// context.CancelFunc, a second call is a harmless no-op.
	h.stopPruning()
}
