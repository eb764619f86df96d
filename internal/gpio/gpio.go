// Package gpio drives the feeder's GPIO peripherals: the HX711 load cell
// amplifier, the HC-SR04 rangefinder, the pump relay and the feed button.
// The real implementations use the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import "errors"

// ErrUnsupported is returned by the real drivers on non-Linux platforms.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// ButtonReader reads the feed button.
type ButtonReader interface {
	// Pressed returns true while the button is held down.
	Pressed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinRelay      = 17 // water pump relay, active high
	PinButton     = 27 // manual feed button to ground
	PinScaleData  = 5  // HX711 DOUT
	PinScaleClock = 6  // HX711 PD_SCK
	PinSonarTrig  = 23
	PinSonarEcho  = 24
)

// Chip is the GPIO character device used by all drivers.
const Chip = "gpiochip0"
