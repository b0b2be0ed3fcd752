// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package trace

// Callstack is an ordered sequence of return addresses, youngest frame
// first. Its id is computed by XOR-folding the frames; collisions are
// accepted and documented (see ID).
type Callstack []Address

// ID folds the frames with XOR starting at 0. Two different frame
// sequences may share an id; this is a known tradeoff traded for O(1)
// lookup and zero allocation. An empty Callstack has id 0, which doubles
// as "no callstack captured" in the event encoding.
func (c Callstack) ID() uint64 {
	var id uint64
	for _, frame := range c {
		id ^= uint64(frame)
	}
	return id
}

// BacktraceSource captures a Callstack from whatever exposes a raw
// backtrace, in this module an interceptor.InvocationContext. Kept as a
// narrow interface (rather than importing the interceptor package
// directly) so trace has no dependency on the facade package; the
// allocator hook set supplies the concrete argument.
type BacktraceSource interface {
	Backtrace() []Address
}

// Capture walks the invocation context's captured CPU state and produces a
// Callstack. It performs exactly one copy of the returned frame slice and
// otherwise does not allocate; capture must never itself call through the
// traced allocator.
func Capture(ctx BacktraceSource) Callstack {
	frames := ctx.Backtrace()
	if len(frames) == 0 {
		return nil
	}
	cs := make(Callstack, len(frames))
	copy(cs, frames)
	return cs
}
