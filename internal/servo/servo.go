// Package servo drives the food hatch servo from a hardware PWM channel.
package servo

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by the real driver on non-Linux platforms.
var ErrUnsupported = errors.New("servo: not supported on this platform (requires Linux)")

// DefaultPin is the BCM pin carrying PWM0.
const DefaultPin = 18

// Hobby servo timing: one pulse every 20ms, 544µs at 0° to 2400µs at 180°.
const (
	Period   = 20 * time.Millisecond
	MinPulse = 544 * time.Microsecond
	MaxPulse = 2400 * time.Microsecond
	MaxAngle = 180
)

// pwmClockHz gives a 1µs PWM resolution.
const pwmClockHz = 1_000_000

// PulseWidth maps an angle, clamped to [0, MaxAngle], onto the pulse width.
func PulseWidth(angle int) time.Duration {
	if angle < 0 {
		angle = 0
	}
	if angle > MaxAngle {
		angle = MaxAngle
	}
	return MinPulse + (MaxPulse-MinPulse)*time.Duration(angle)/MaxAngle
}

// dutyCycle returns the PWM duty and cycle lengths in clock ticks.
func dutyCycle(angle int) (duty, cycle uint32) {
	return uint32(PulseWidth(angle).Microseconds()), uint32(Period.Microseconds())
}
