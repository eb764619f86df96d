// Package coop provides the cooperative primitives the control loop is built
// on: a clock, a wait that keeps background work alive, and a tick scheduler.
package coop

import "time"

// Clock supplies time and real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock only moves when slept on. Not safe for concurrent use.
type FakeClock struct {
	T      time.Time
	Sleeps []time.Duration
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{T: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time { return c.T }

// Sleep advances the fake time by d and records the call.
func (c *FakeClock) Sleep(d time.Duration) {
	c.Sleeps = append(c.Sleeps, d)
	c.T = c.T.Add(d)
}

// Advance moves the clock without recording a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}
