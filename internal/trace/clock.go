// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package trace

import "time"

// Clock supplies the monotonic counter stamped onto each committed
// event. A raw cycle counter would also do; the only property consumers
// rely on is a non-decreasing value sampled at commit time, after the
// buffer's lock is acquired.
type Clock interface {
	Now() uint64
}

// monotonicClock is the default Clock, backed by the runtime's monotonic
// timer and offset to the Unix-nanosecond reading taken at clockBase.
type monotonicClock struct{}

// clockBase anchors monotonicClock: its wall reading supplies the offset,
// its monotonic reading the elapsed time.
var clockBase = time.Now()

func (monotonicClock) Now() uint64 {
	return uint64(clockBase.UnixNano() + int64(time.Since(clockBase)))
}

// DefaultClock is the Clock used by a Buffer constructed with NewBuffer.
var DefaultClock Clock = monotonicClock{}
