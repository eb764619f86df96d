//go:build linux

package servo

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// Hatch is the hatch servo on a hardware PWM pin.
type Hatch struct {
	mu    sync.Mutex
	pin   rpio.Pin
	angle int
}

// Open maps the GPIO memory and configures pin for servo PWM.
func Open(pin int) (*Hatch, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(pwmClockHz)
	return &Hatch{pin: p, angle: -1}, nil
}

// SetAngle moves the servo to deg.
func (h *Hatch) SetAngle(deg int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	duty, cycle := dutyCycle(deg)
	h.pin.DutyCycle(duty, cycle)
	h.angle = deg
	return nil
}

// Angle returns the last commanded angle, -1 before the first command.
func (h *Hatch) Angle() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.angle
}

// Close stops the pulse train and unmaps the GPIO memory. The servo holds
// its last position unpowered.
func (h *Hatch) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pin.DutyCycle(0, uint32(Period.Microseconds()))
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close gpio memory: %w", err)
	}
	return nil
}
