package coop

import (
	"runtime"
	"time"
)

// Defaults for Waiter.
const (
	DefaultSlice    = 10 * time.Millisecond
	DefaultMinDwell = 3 * time.Second // minimum time a status message stays visible
)

// Waiter waits without ever sleeping longer than one slice, running the
// background hooks on every slice.
type Waiter struct {
	clock    Clock
	slice    time.Duration
	minDwell time.Duration
	hooks    []func()
}

// NewWaiter creates a Waiter. Zero slice or minDwell fall back to defaults.
func NewWaiter(clock Clock, slice, minDwell time.Duration) *Waiter {
	if slice <= 0 {
		slice = DefaultSlice
	}
	if minDwell <= 0 {
		minDwell = DefaultMinDwell
	}
	return &Waiter{clock: clock, slice: slice, minDwell: minDwell}
}

// OnYield registers fn to run on every yield.
func (w *Waiter) OnYield(fn func()) {
	w.hooks = append(w.hooks, fn)
}

// Now returns the waiter's clock time.
func (w *Waiter) Now() time.Time {
	return w.clock.Now()
}

// Slice returns the longest single sleep the waiter performs.
func (w *Waiter) Slice() time.Duration {
	return w.slice
}

// Yield services background work once.
func (w *Waiter) Yield() {
	for _, fn := range w.hooks {
		fn()
	}
	runtime.Gosched()
}

// Wait returns after d has elapsed, yielding on every slice.
func (w *Waiter) Wait(d time.Duration) {
	start := w.clock.Now()
	for {
		w.Yield()
		remaining := d - w.clock.Now().Sub(start)
		if remaining <= 0 {
			return
		}
		if remaining > w.slice {
			remaining = w.slice
		}
		w.clock.Sleep(remaining)
	}
}

// WaitSince keeps a message visible for at least the minimum dwell measured
// from shownAt. If the dwell has already passed it returns at once; otherwise
// it waits for the longer of d and the remaining dwell. A zero shownAt is a
// plain Wait(d).
func (w *Waiter) WaitSince(d time.Duration, shownAt time.Time) {
	if shownAt.IsZero() {
		w.Wait(d)
		return
	}
	elapsed := w.clock.Now().Sub(shownAt)
	if elapsed >= w.minDwell {
		return
	}
	if rest := w.minDwell - elapsed; rest > d {
		d = rest
	}
	w.Wait(d)
}
