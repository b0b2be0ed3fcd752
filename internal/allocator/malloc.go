// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package allocator

import (
	"math/bits"
	"sync/atomic"

	"github.com/allog-project/allog/internal/config"
	"github.com/allog-project/allog/internal/interceptor"
	"github.com/allog-project/allog/internal/pending"
	"github.com/allog-project/allog/internal/trace"
)

// Malloc is the libc malloc-family Binding: malloc, calloc, memalign,
// realloc, free. Every listener shares the same pending store and commit
// target; each owns its own attach handle and call count.
type Malloc struct {
	deps Dependencies

	malloc   *mallocListener
	calloc   *callocListener
	memalign *memalignListener
	realloc  *reallocListener
	free     *freeListener

	mallocHandle   interceptor.ListenerHandle
	callocHandle   interceptor.ListenerHandle
	memalignHandle interceptor.ListenerHandle
	reallocHandle  interceptor.ListenerHandle
	freeHandle     interceptor.ListenerHandle
}

// NewMalloc builds an unattached Malloc binding over deps.
func NewMalloc(deps Dependencies) *Malloc {
	return &Malloc{
		deps:     deps,
		malloc:   &mallocListener{pending: deps.Pending, buffer: deps.Buffer, metrics: deps.Metrics},
		calloc:   &callocListener{pending: deps.Pending, buffer: deps.Buffer, metrics: deps.Metrics},
		memalign: &memalignListener{pending: deps.Pending, buffer: deps.Buffer, metrics: deps.Metrics},
		realloc:  &reallocListener{pending: deps.Pending, buffer: deps.Buffer, metrics: deps.Metrics},
		free:     &freeListener{pending: deps.Pending, buffer: deps.Buffer, metrics: deps.Metrics},
	}
}

// Init attaches all five listeners, skipping any that are disabled or
// unresolvable; per-target failures are non-fatal.
func (m *Malloc) Init(cfg *config.Config) error {
	m.mallocHandle, _ = interceptor.AttachTarget(m.deps.Interceptor, m.deps.Resolver, cfg, "malloc", m.malloc)
	m.callocHandle, _ = interceptor.AttachTarget(m.deps.Interceptor, m.deps.Resolver, cfg, "calloc", m.calloc)
	m.memalignHandle, _ = interceptor.AttachTarget(m.deps.Interceptor, m.deps.Resolver, cfg, "memalign", m.memalign)
	m.reallocHandle, _ = interceptor.AttachTarget(m.deps.Interceptor, m.deps.Resolver, cfg, "realloc", m.realloc)
	m.freeHandle, _ = interceptor.AttachTarget(m.deps.Interceptor, m.deps.Resolver, cfg, "free", m.free)
	return nil
}

func dropInc(m MetricsSink, target, reason string) {
	if m != nil {
		m.DroppedInc(target, reason)
	}
}

func commitInc(m MetricsSink, target string) {
	if m != nil {
		m.CommitInc(target)
	}
}

// Fini detaches every attached listener and logs its final count.
func (m *Malloc) Fini() error {
	interceptor.DetachTarget("malloc", m.mallocHandle, m.malloc.count.Load())
	interceptor.DetachTarget("calloc", m.callocHandle, m.calloc.count.Load())
	interceptor.DetachTarget("memalign", m.memalignHandle, m.memalign.count.Load())
	interceptor.DetachTarget("realloc", m.reallocHandle, m.realloc.count.Load())
	interceptor.DetachTarget("free", m.freeHandle, m.free.count.Load())
	return nil
}

// mallocListener traces `void *malloc(size_t size)`.
type mallocListener struct {
	pending PendingStore
	buffer  Committer
	metrics MetricsSink
	count   atomic.Uint64
}

func (l *mallocListener) OnEnter(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		return
	}
	defer handle.Release()

	callstack := trace.Capture(ctx)
	handle.PushAlloc(pending.PendingAlloc{
		Event:     trace.AllocEvent{Size: ctx.Arg(0)},
		Callstack: callstack,
	})
}

func (l *mallocListener) OnLeave(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		dropInc(l.metrics, "malloc", "reentrant")
		return
	}
	defer handle.Release()

	p, ok := handle.PopAlloc()
	if !ok {
		dropInc(l.metrics, "malloc", "no_pending")
		return
	}
	p.Event.Address = trace.Address(ctx.ReturnValue())
	l.buffer.Add(trace.Event{Alloc: &p.Event}, p.Callstack)
	l.count.Add(1)
	commitInc(l.metrics, "malloc")
}

// callocListener traces `void *calloc(size_t nmemb, size_t size)`. The
// total byte count is nmemb*size; an overflowing product is dropped
// without committing an event rather than recording a wrapped, wrong
// size.
type callocListener struct {
	pending PendingStore
	buffer  Committer
	metrics MetricsSink
	count   atomic.Uint64
}

func (l *callocListener) OnEnter(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		return
	}
	defer handle.Release()

	callstack := trace.Capture(ctx)

	nmemb := ctx.Arg(0)
	size := ctx.Arg(1)
	hi, total := bits.Mul64(nmemb, size)
	if hi != 0 {
		// Overflowing request: no well-defined size to record.
		return
	}
	handle.PushAlloc(pending.PendingAlloc{
		Event:     trace.AllocEvent{Size: total},
		Callstack: callstack,
	})
}

func (l *callocListener) OnLeave(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		dropInc(l.metrics, "calloc", "reentrant")
		return
	}
	defer handle.Release()

	p, ok := handle.PopAlloc()
	if !ok {
		dropInc(l.metrics, "calloc", "no_pending")
		return
	}
	p.Event.Address = trace.Address(ctx.ReturnValue())
	l.buffer.Add(trace.Event{Alloc: &p.Event}, p.Callstack)
	l.count.Add(1)
	commitInc(l.metrics, "calloc")
}

// memalignListener traces `void *memalign(size_t alignment, size_t
// size)`. The alignment argument isn't part of the committed event
// shape, which only carries size.
// TODO: record the alignment once the event metadata has a place for it.
type memalignListener struct {
	pending PendingStore
	buffer  Committer
	metrics MetricsSink
	count   atomic.Uint64
}

func (l *memalignListener) OnEnter(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		return
	}
	defer handle.Release()

	callstack := trace.Capture(ctx)
	size := ctx.Arg(1)
	handle.PushAlloc(pending.PendingAlloc{
		Event:     trace.AllocEvent{Size: size},
		Callstack: callstack,
	})
}

func (l *memalignListener) OnLeave(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		dropInc(l.metrics, "memalign", "reentrant")
		return
	}
	defer handle.Release()

	p, ok := handle.PopAlloc()
	if !ok {
		dropInc(l.metrics, "memalign", "no_pending")
		return
	}
	p.Event.Address = trace.Address(ctx.ReturnValue())
	l.buffer.Add(trace.Event{Alloc: &p.Event}, p.Callstack)
	l.count.Add(1)
	commitInc(l.metrics, "memalign")
}

// reallocListener traces `void *realloc(void *ptr, size_t size)`.
type reallocListener struct {
	pending PendingStore
	buffer  Committer
	metrics MetricsSink
	count   atomic.Uint64
}

func (l *reallocListener) OnEnter(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		return
	}
	defer handle.Release()

	callstack := trace.Capture(ctx)
	handle.PushRealloc(pending.PendingRealloc{
		Event: trace.ReallocEvent{
			OldAddress: trace.Address(ctx.Arg(0)),
			Size:       ctx.Arg(1),
		},
		Callstack: callstack,
	})
}

func (l *reallocListener) OnLeave(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		dropInc(l.metrics, "realloc", "reentrant")
		return
	}
	defer handle.Release()

	p, ok := handle.PopRealloc()
	if !ok {
		dropInc(l.metrics, "realloc", "no_pending")
		return
	}
	p.Event.NewAddress = trace.Address(ctx.ReturnValue())
	l.buffer.Add(trace.Event{Realloc: &p.Event}, p.Callstack)
	l.count.Add(1)
	commitInc(l.metrics, "realloc")
}

// freeListener traces `void free(void *ptr)`. Unlike the other four
// targets, the callstack is captured on leave rather than enter:
// capturing after the call still returns the caller's stack, and it
// saves carrying the callstack through the pending store.
type freeListener struct {
	pending PendingStore
	buffer  Committer
	metrics MetricsSink
	count   atomic.Uint64
}

func (l *freeListener) OnEnter(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		return
	}
	defer handle.Release()

	handle.PushFree(pending.PendingFree{
		Event: trace.FreeEvent{Address: trace.Address(ctx.Arg(0))},
	})
}

func (l *freeListener) OnLeave(ctx interceptor.InvocationContext) {
	handle, ok := l.pending.Get()
	if !ok {
		dropInc(l.metrics, "free", "reentrant")
		return
	}
	defer handle.Release()

	p, ok := handle.PopFree()
	if !ok {
		dropInc(l.metrics, "free", "no_pending")
		return
	}
	callstack := trace.Capture(ctx)
	l.buffer.Add(trace.Event{Free: &p.Event}, callstack)
	l.count.Add(1)
	commitInc(l.metrics, "free")
}
