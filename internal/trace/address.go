// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package trace holds the allocator event log: the callstack-interning
// trace buffer and the tagged Event variants committed to it.
package trace

// Address identifies a byte in the traced process's virtual address space.
// Zero is a valid literal meaning "allocation failed" when used as an
// event's address field.
type Address uint64
