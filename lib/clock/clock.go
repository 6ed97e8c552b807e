// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject a Fake with deterministic control.
//
// The ingest pipeline only ever reads the current time (product
// arrival stamps, session statistics), so the interface carries
// exactly that.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time. Code that stamps products or
// measures durations takes a Clock instead of calling time.Now, so
// tests control what it sees.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns a Clock backed by the system clock.
func Real() Clock { return realClock{} }

// Fake is a Clock under test control. The zero value starts at the
// zero time; NewFake starts at a fixed, readable instant. Safe for
// concurrent use.
type Fake struct {
	mutex sync.Mutex
	now   time.Time
}

// NewFake returns a Fake set to a fixed arbitrary instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

// Advance moves the fake's time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
}

// Set moves the fake's time to t.
func (f *Fake) Set(t time.Time) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = t
}
