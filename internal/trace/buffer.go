// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Buffer is the append-only event log with callstack interning. Every
// commit (Add) holds the mutex for its whole duration, and Serialize
// takes the same lock so a concurrent Add can never tear a serialize in
// progress.
type Buffer struct {
	mu        sync.Mutex
	clock     Clock
	events    []Event
	callstack map[uint64]Callstack
}

// NewBuffer returns an empty Buffer using the package DefaultClock.
func NewBuffer() *Buffer {
	return NewBufferWithClock(DefaultClock)
}

// NewBufferWithClock returns an empty Buffer stamping commits with clock.
// Exposed for tests that need deterministic, injectable timestamps.
func NewBufferWithClock(clock Clock) *Buffer {
	return &Buffer{
		clock:     clock,
		callstack: make(map[uint64]Callstack),
	}
}

// Add stamps event.Timestamp with the current clock reading and
// event.CallstackID with callstack's id (0 if callstack is nil), appends
// the event, and interns callstack under its id if not already present.
// First write for a given id wins; later Add calls carrying an
// already-interned id leave meta.callstack untouched.
//
// Add never returns an error: a full commit (stamp + append + intern) is
// unconditional once the caller holds a pending entry to complete.
func (b *Buffer) Add(event Event, callstack Callstack) {
	var id uint64
	if callstack != nil {
		id = callstack.ID()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Timestamp is stamped after the lock is acquired, keeping event
	// order and event.Timestamp consistent with the global commit order.
	event.stamp(b.clock.Now(), id)
	b.events = append(b.events, event)
	if callstack != nil {
		if _, ok := b.callstack[id]; !ok {
			b.callstack[id] = callstack
		}
	}
}

// Len returns the number of committed events. Used by tests.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Events returns a copy of the committed events in commit order. Used by
// tests; not part of the external wire format (use Serialize for that).
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// wireTrace is the on-disk document shape.
type wireTrace struct {
	Events []Event       `json:"events"`
	Meta   wireTraceMeta `json:"meta"`
}

type wireTraceMeta struct {
	Callstack map[string]Callstack `json:"callstack"`
}

// Serialize writes the canonical JSON form of the trace to w. It holds the
// buffer's lock for the duration of the write so a Serialize that begins
// after the last hook has detached observes a final, stable snapshot.
func (b *Buffer) Serialize(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := wireTrace{
		Events: b.events,
		Meta: wireTraceMeta{
			Callstack: make(map[string]Callstack, len(b.callstack)),
		},
	}
	if out.Events == nil {
		out.Events = []Event{}
	}
	for id, cs := range b.callstack {
		out.Meta.Callstack[fmt.Sprintf("%d", id)] = cs
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("trace: serializing trace: %w", err)
	}
	return nil
}

// Deserialize parses the canonical JSON form produced by Serialize,
// returning the events in their original commit order and the interned
// callstack map. Used by round-trip tests and offline tooling; the live
// tracer itself never reads a trace back in.
func Deserialize(r io.Reader) (events []Event, callstacks map[uint64]Callstack, err error) {
	var in wireTrace
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, nil, fmt.Errorf("trace: parsing trace: %w", err)
	}
	callstacks = make(map[uint64]Callstack, len(in.Meta.Callstack))
	for key, cs := range in.Meta.Callstack {
		var id uint64
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
			return nil, nil, fmt.Errorf("trace: parsing callstack id %q: %w", key, err)
		}
		callstacks[id] = cs
	}
	return in.Events, callstacks, nil
}
