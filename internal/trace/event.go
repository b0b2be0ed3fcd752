// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package trace

import (
	"encoding/json"
	"fmt"
)

// AllocEvent records a successful or failed allocating call (malloc,
// calloc, memalign). Address 0 means the call returned NULL.
type AllocEvent struct {
	Timestamp   uint64  `json:"timestamp"`
	Address     Address `json:"address"`
	Size        uint64  `json:"size"`
	CallstackID uint64  `json:"callstack"`
}

// ReallocEvent records a realloc call. NewAddress 0 means the call
// returned NULL; realloc(p, 0) is recorded the same way, with no
// special-casing for allocators that treat it as a free.
type ReallocEvent struct {
	Timestamp   uint64  `json:"timestamp"`
	OldAddress  Address `json:"old_address"`
	NewAddress  Address `json:"new_address"`
	Size        uint64  `json:"size"`
	CallstackID uint64  `json:"callstack"`
}

// FreeEvent records a free call.
type FreeEvent struct {
	Timestamp   uint64  `json:"timestamp"`
	Address     Address `json:"address"`
	CallstackID uint64  `json:"callstack"`
}

// Event is the tagged union committed to a Trace: exactly one of Alloc,
// Realloc, or Free is non-nil. The external tag keeps the discriminant
// adjacent to the payload rather than folded into it, so downstream JSON
// consumers can switch on the single present key.
type Event struct {
	Alloc   *AllocEvent
	Realloc *ReallocEvent
	Free    *FreeEvent
}

// stamp fills in the timestamp and callstack id fields of whichever
// variant is populated. Called exactly once, by Buffer.Add, at commit
// time.
func (e *Event) stamp(ts uint64, callstackID uint64) {
	switch {
	case e.Alloc != nil:
		e.Alloc.Timestamp = ts
		e.Alloc.CallstackID = callstackID
	case e.Realloc != nil:
		e.Realloc.Timestamp = ts
		e.Realloc.CallstackID = callstackID
	case e.Free != nil:
		e.Free.Timestamp = ts
		e.Free.CallstackID = callstackID
	}
}

// MarshalJSON renders the event as a single-key object keyed by variant
// name: {"Alloc": {...}} / {"Realloc": {...}} / {"Free": {...}}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch {
	case e.Alloc != nil:
		return json.Marshal(map[string]*AllocEvent{"Alloc": e.Alloc})
	case e.Realloc != nil:
		return json.Marshal(map[string]*ReallocEvent{"Realloc": e.Realloc})
	case e.Free != nil:
		return json.Marshal(map[string]*FreeEvent{"Free": e.Free})
	default:
		return nil, fmt.Errorf("trace: empty event has no variant to marshal")
	}
}

// UnmarshalJSON is the inverse of MarshalJSON, used by round-trip tests and
// by any offline tool that reads a trace back in.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("trace: event object must have exactly one key, got %d", len(raw))
	}
	for tag, payload := range raw {
		switch tag {
		case "Alloc":
			var a AllocEvent
			if err := json.Unmarshal(payload, &a); err != nil {
				return fmt.Errorf("trace: decoding Alloc event: %w", err)
			}
			e.Alloc = &a
		case "Realloc":
			var r ReallocEvent
			if err := json.Unmarshal(payload, &r); err != nil {
				return fmt.Errorf("trace: decoding Realloc event: %w", err)
			}
			e.Realloc = &r
		case "Free":
			var f FreeEvent
			if err := json.Unmarshal(payload, &f); err != nil {
				return fmt.Errorf("trace: decoding Free event: %w", err)
			}
			e.Free = &f
		default:
			return fmt.Errorf("trace: unknown event tag %q", tag)
		}
	}
	return nil
}
