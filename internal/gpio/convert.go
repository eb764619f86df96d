package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/pet-feeder/internal/filter"
)

// DefaultCalibration is the counts-per-gram factor of the stock load cell.
const DefaultCalibration = 374.13

// ErrNotReady is returned when the HX711 has no conversion available.
var ErrNotReady = errors.New("hx711: not ready")

// signExtend24 converts a 24-bit two's complement value to int32.
func signExtend24(raw uint32) int32 {
	raw &= 0xFFFFFF
	if raw&0x800000 != 0 {
		raw |= 0xFF000000
	}
	return int32(raw)
}

// loadCell turns raw HX711 counts into grams. It is shared by the real
// driver and tests; the count source is injected.
type loadCell struct {
	ready  func() bool
	raw    func() (int32, error)
	offset float64
	factor float64
}

func newLoadCell(ready func() bool, raw func() (int32, error)) *loadCell {
	return &loadCell{ready: ready, raw: raw, factor: DefaultCalibration}
}

// Ready reports whether a conversion is available.
func (c *loadCell) Ready() bool {
	return c.ready()
}

// Read returns one mass sample in grams.
func (c *loadCell) Read() (float64, error) {
	if !c.ready() {
		return 0, ErrNotReady
	}
	v, err := c.raw()
	if err != nil {
		return 0, err
	}
	return (float64(v) - c.offset) / c.factor, nil
}

// ReadMass averages samples reads in grams.
func (c *loadCell) ReadMass(samples int) (float64, error) {
	r, err := filter.MeanOf(samples, c.Read, nil)
	if err != nil {
		return 0, fmt.Errorf("read mass: %w", err)
	}
	return r.Value, nil
}

// Tare sets the zero offset to the mean of samples raw reads.
func (c *loadCell) Tare(samples int) error {
	r, err := filter.MeanOf(samples, c.readRaw, nil)
	if err != nil {
		return fmt.Errorf("tare: %w", err)
	}
	c.offset = r.Value
	return nil
}

func (c *loadCell) readRaw() (float64, error) {
	if !c.ready() {
		return 0, ErrNotReady
	}
	v, err := c.raw()
	return float64(v), err
}

// SetScale sets the counts-per-gram calibration factor.
func (c *loadCell) SetScale(factor float64) {
	if factor != 0 {
		c.factor = factor
	}
}

// SetOffset restores a previously measured tare offset.
func (c *loadCell) SetOffset(offset float64) {
	c.offset = offset
}

// Offset returns the current tare offset in raw counts.
func (c *loadCell) Offset() float64 {
	return c.offset
}

// Sound travels 1cm and back in about 58µs.
const echoUsPerCm = 58.0

// EchoTimeout bounds the wait for an echo; beyond it the target is out of
// range (~400cm).
const EchoTimeout = 25 * time.Millisecond

// echoCm converts an echo pulse width to centimetres.
func echoCm(pulse time.Duration) float64 {
	if pulse <= 0 {
		return 0
	}
	return float64(pulse.Microseconds()) / echoUsPerCm
}
