//go:build linux

package gpio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Button reads the feed button from actual hardware.
type Button struct {
	line *gpiocdev.Line
}

// NewButton requests the button line as an active-low input with pull-up,
// so a press to ground reads as 1.
func NewButton(pin int) (*Button, error) {
	line, err := gpiocdev.RequestLine(Chip, pin, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	return &Button{line: line}, nil
}

// Pressed returns true while the button is held down.
func (b *Button) Pressed() (bool, error) {
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("read button pin: %w", err)
	}
	return v == 1, nil
}

// Close releases the line.
func (b *Button) Close() error {
	return b.line.Close()
}

// Relay switches the water pump.
type Relay struct {
	line *gpiocdev.Line
}

// NewRelay requests the relay line as an output, initially off.
func NewRelay(pin int) (*Relay, error) {
	line, err := gpiocdev.RequestLine(Chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &Relay{line: line}, nil
}

// SetPump energises or releases the relay.
func (r *Relay) SetPump(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	return nil
}

// Close switches the pump off and returns the pin to an input with
// pull-down, matching Pi boot defaults.
func (r *Relay) Close() error {
	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("switch relay off: %w", err))
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// HX711 is the load cell amplifier, clocked by bit-banging PD_SCK.
type HX711 struct {
	*loadCell
	data  *gpiocdev.Line
	clock *gpiocdev.Line
}

// NewHX711 requests the data and clock lines. The amplifier is read on
// channel A at gain 128.
func NewHX711(dataPin, clockPin int) (*HX711, error) {
	data, err := gpiocdev.RequestLine(Chip, dataPin, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("request HX711 data pin %d: %w", dataPin, err)
	}
	clock, err := gpiocdev.RequestLine(Chip, clockPin, gpiocdev.AsOutput(0))
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("request HX711 clock pin %d: %w", clockPin, err)
	}
	h := &HX711{data: data, clock: clock}
	h.loadCell = newLoadCell(h.ready, h.readCounts)
	return h, nil
}

// ready is true when DOUT is pulled low.
func (h *HX711) ready() bool {
	v, err := h.data.Value()
	return err == nil && v == 0
}

// readCounts clocks out one 24-bit conversion. PD_SCK must not stay high
// for more than 60µs or the chip powers down, so the goroutine is pinned
// to its thread for the duration.
func (h *HX711) readCounts() (int32, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var raw uint32
	for i := 0; i < 24; i++ {
		if err := h.clock.SetValue(1); err != nil {
			return 0, fmt.Errorf("hx711 clock: %w", err)
		}
		bit, err := h.data.Value()
		if err != nil {
			h.clock.SetValue(0)
			return 0, fmt.Errorf("hx711 data: %w", err)
		}
		if err := h.clock.SetValue(0); err != nil {
			return 0, fmt.Errorf("hx711 clock: %w", err)
		}
		raw = raw<<1 | uint32(bit)
	}
	// 25th pulse selects channel A, gain 128 for the next conversion
	if err := h.clock.SetValue(1); err != nil {
		return 0, fmt.Errorf("hx711 clock: %w", err)
	}
	if err := h.clock.SetValue(0); err != nil {
		return 0, fmt.Errorf("hx711 clock: %w", err)
	}
	return signExtend24(raw), nil
}

// Close releases the lines.
func (h *HX711) Close() error {
	var errs []error
	if err := h.clock.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close clock pin: %w", err))
	}
	if err := h.data.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close data pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Sonar is the HC-SR04 rangefinder. Echo pulse width is taken from the
// kernel's edge event timestamps rather than from polling.
type Sonar struct {
	trig *gpiocdev.Line
	echo *gpiocdev.Line

	mu     sync.Mutex
	rising time.Duration
	pulses chan time.Duration
}

// NewSonar requests the trigger output and the echo input with edge events.
func NewSonar(trigPin, echoPin int) (*Sonar, error) {
	s := &Sonar{pulses: make(chan time.Duration, 1)}
	trig, err := gpiocdev.RequestLine(Chip, trigPin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request sonar trig pin %d: %w", trigPin, err)
	}
	echo, err := gpiocdev.RequestLine(Chip, echoPin,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.onEdge))
	if err != nil {
		trig.Close()
		return nil, fmt.Errorf("request sonar echo pin %d: %w", echoPin, err)
	}
	s.trig = trig
	s.echo = echo
	return s, nil
}

func (s *Sonar) onEdge(evt gpiocdev.LineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		s.rising = evt.Timestamp
	case gpiocdev.LineEventFallingEdge:
		if s.rising == 0 {
			return
		}
		select {
		case s.pulses <- evt.Timestamp - s.rising:
		default:
		}
		s.rising = 0
	}
}

// Distance triggers one ping and returns the distance in centimetres, or 0
// when no echo arrived within EchoTimeout.
func (s *Sonar) Distance() (float64, error) {
	select {
	case <-s.pulses:
	default:
	}

	if err := s.trig.SetValue(1); err != nil {
		return 0, fmt.Errorf("sonar trigger: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := s.trig.SetValue(0); err != nil {
		return 0, fmt.Errorf("sonar trigger: %w", err)
	}

	timer := time.NewTimer(EchoTimeout)
	defer timer.Stop()
	select {
	case pulse := <-s.pulses:
		return echoCm(pulse), nil
	case <-timer.C:
		return 0, nil
	}
}

// Close releases the lines.
func (s *Sonar) Close() error {
	var errs []error
	if err := s.echo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close echo pin: %w", err))
	}
	if err := s.trig.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close trig pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
