// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package pending implements the goroutine-local pending-call store, the
// basis of reentrancy detection. Go has no OS-thread-local storage
// exposed to user code, so "thread" throughout this package means "the
// calling goroutine", identified via goroutineID.
//
// A goroutine has no exit hook Go exposes to user code, and goroutine
// ids are never recycled. Left unmitigated, every distinct goroutine
// that ever calls a traced allocator function leaks one entry in
// Store.entries for the rest of the process's life. StartPruning bounds
// this by periodically discarding entries that have sat idle and
// unborrowed past a deadline.
package pending

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allog-project/allog/internal/trace"
)

// PendingAlloc is a partially-filled AllocEvent paired with the callstack
// captured on entry, held on a goroutine's stack between on-enter and
// on-leave.
type PendingAlloc struct {
	Event     trace.AllocEvent
	Callstack trace.Callstack
}

// PendingRealloc is the realloc analogue of PendingAlloc.
type PendingRealloc struct {
	Event     trace.ReallocEvent
	Callstack trace.Callstack
}

// PendingFree is a partially-filled FreeEvent; free captures its callstack
// on leave, so no Callstack field is carried here.
type PendingFree struct {
	Event trace.FreeEvent
}

// entry is the per-goroutine record: three LIFO stacks plus the borrow
// flag that makes Get a non-blocking try-lock. Stacks, not single slots,
// because a traced function may call another traced function through a
// library wrapper (e.g. calloc calling malloc), nesting enter/leave pairs
// on the same goroutine.
type entry struct {
	borrowed atomic.Bool
	lastUsed atomic.Int64 // UnixNano, updated on every Get
	allocs   []PendingAlloc
	reallocs []PendingRealloc
	frees    []PendingFree
}

// Store is the goroutine-local pending store. The zero value is not
// usable; construct with NewStore.
type Store struct {
	closed  atomic.Bool
	entries sync.Map // goroutineID -> *entry
}

// NewStore returns a ready, open Store.
func NewStore() *Store {
	return &Store{}
}

// Handle is a live, exclusively-borrowed view of the calling goroutine's
// pending state. Callers must call Release when done, typically via
// defer, immediately after a successful Get.
type Handle struct {
	e *entry
}

// Get acquires exclusive access to the calling goroutine's pending state.
// It fails (returns ok == false) in exactly two cases:
//
//  1. The calling goroutine already holds its own handle, i.e. another
//     instrumented call is in progress above this one on the same
//     goroutine. This is the reentrancy signal: an allocation the tracer
//     itself performs while capturing a callstack or committing an event
//     must not recurse into the pipeline.
//  2. The store has been closed (late shutdown).
//
// Get never blocks and never allocates through the traced allocator: the
// borrow is a single atomic CompareAndSwap, and the per-goroutine entry is
// created lazily on first access and reused afterward.
func (s *Store) Get() (*Handle, bool) {
	if s.closed.Load() {
		return nil, false
	}
	id := goroutineID()
	v, _ := s.entries.LoadOrStore(id, &entry{})
	e := v.(*entry)
	e.lastUsed.Store(time.Now().UnixNano())
	if !e.borrowed.CompareAndSwap(false, true) {
		// Already borrowed: this goroutine is re-entering from within
		// its own handler. Silently decline; the caller must skip the
		// event, not retry or block.
		return nil, false
	}
	return &Handle{e: e}, true
}

// Close marks the store closed: subsequent Get calls fail as though TLS
// had been torn down. Used by lifecycle.Shutdown's Noop reset step to
// guarantee no late re-entry can touch a store about to be discarded, and
// by tests simulating post-shutdown calls.
func (s *Store) Close() {
	s.closed.Store(true)
}

// Prune discards entries that are not currently borrowed and have not
// been touched by Get for at least idleFor. An entry still holding
// pending pushes is skipped as well: an on-enter releases its borrow
// after pushing, so between an on-enter and its on-leave the entry is
// unborrowed with a non-empty stack.
func (s *Store) Prune(idleFor time.Duration) {
	cutoff := time.Now().Add(-idleFor).UnixNano()
	s.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		if e.borrowed.Load() || e.lastUsed.Load() > cutoff {
			return true
		}
		if len(e.allocs) != 0 || len(e.reallocs) != 0 || len(e.frees) != 0 {
			return true
		}
		s.entries.CompareAndDelete(key, value)
		return true
	})
}

// StartPruning runs Prune on a ticker until ctx is canceled, bounding the
// goroutine-entry leak described in the package doc. interval is how
// often Prune runs; idleFor is how long an entry must sit unused before
// it's eligible for removal.
func (s *Store) StartPruning(ctx context.Context, interval, idleFor time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Prune(idleFor)
			}
		}
	}()
}

// Release relinquishes the borrow acquired by Get, making the handle's
// goroutine entry available to a future Get call (typically the next
// instrumented call on the same goroutine, or a nested one if Release is
// deferred past this handler's own allocations).
func (h *Handle) Release() {
	h.e.borrowed.Store(false)
}

// PushAlloc appends a PendingAlloc onto this goroutine's alloc stack.
func (h *Handle) PushAlloc(p PendingAlloc) {
	h.e.allocs = append(h.e.allocs, p)
}

// PopAlloc pops the most recently pushed PendingAlloc. ok is false if
// the stack is empty, which only happens if the matching on-enter itself
// failed to acquire a handle or declined to push.
func (h *Handle) PopAlloc() (p PendingAlloc, ok bool) {
	n := len(h.e.allocs)
	if n == 0 {
		return PendingAlloc{}, false
	}
	p = h.e.allocs[n-1]
	h.e.allocs = h.e.allocs[:n-1]
	return p, true
}

// PushRealloc appends a PendingRealloc onto this goroutine's realloc
// stack.
func (h *Handle) PushRealloc(p PendingRealloc) {
	h.e.reallocs = append(h.e.reallocs, p)
}

// PopRealloc pops the most recently pushed PendingRealloc.
func (h *Handle) PopRealloc() (p PendingRealloc, ok bool) {
	n := len(h.e.reallocs)
	if n == 0 {
		return PendingRealloc{}, false
	}
	p = h.e.reallocs[n-1]
	h.e.reallocs = h.e.reallocs[:n-1]
	return p, true
}

// PushFree appends a PendingFree onto this goroutine's free stack.
func (h *Handle) PushFree(p PendingFree) {
	h.e.frees = append(h.e.frees, p)
}

// PopFree pops the most recently pushed PendingFree.
func (h *Handle) PopFree() (p PendingFree, ok bool) {
	n := len(h.e.frees)
	if n == 0 {
		return PendingFree{}, false
	}
	p = h.e.frees[n-1]
	h.e.frees = h.e.frees[:n-1]
	return p, true
}
