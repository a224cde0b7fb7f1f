// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source shared by stores, the sync scheduler and
// the server. Tests swap in a manually advanced clockwork fake.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type (
	Clock = clockwork.Clock
	Timer = clockwork.Timer
	// Fake is advanced by tests; AfterFunc callbacks run in their own goroutine
	Fake = clockwork.FakeClock
)

// NewReal returns the system clock reporting UTC
func NewReal() Clock {
	return utcClock{clockwork.NewRealClock()}
}

type utcClock struct {
	clockwork.Clock
}

func (c utcClock) Now() time.Time { return c.Clock.Now().UTC() }

// NewFake returns a fake clock frozen at start
func NewFake(start time.Time) *Fake {
	return clockwork.NewFakeClockAt(start.UTC())
}
