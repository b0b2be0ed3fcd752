// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package pending

import (
	"runtime"
	"strconv"
)

// goroutineID extracts the runtime-assigned id of the calling goroutine
// from the first line of its own stack trace ("goroutine 123 [running]:").
// This is the standard technique Go code reaches for when it genuinely
// needs goroutine identity; there is no exported runtime API for it. It
// is used only as a sync.Map key, and Store.Get cheaply handles the
// common "already have an entry" case after the first call on each
// goroutine.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if len(b) < len(prefix) {
		return 0
	}
	b = b[len(prefix):]

	i := 0
	for i < len(b) && b[i] != ' ' {
		i++
	}
	id, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
