// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts wall-clock operations so that code which waits or
// schedules can be tested deterministically. Production code injects
// Real(); tests inject Fake() and advance time explicitly.
//
// Any function that would otherwise call time.Now, time.After, or
// time.Sleep should accept a Clock (or live on a struct that carries
// one) instead of reaching for the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once duration d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}
