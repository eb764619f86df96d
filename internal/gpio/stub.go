//go:build !linux

package gpio

// Button is not available on non-Linux platforms.
type Button struct{}

// NewButton returns ErrUnsupported on non-Linux platforms.
func NewButton(pin int) (*Button, error) { return nil, ErrUnsupported }

// Pressed is not implemented on non-Linux platforms.
func (b *Button) Pressed() (bool, error) { return false, ErrUnsupported }

// Close is not implemented on non-Linux platforms.
func (b *Button) Close() error { return nil }

// Relay is not available on non-Linux platforms.
type Relay struct{}

// NewRelay returns ErrUnsupported on non-Linux platforms.
func NewRelay(pin int) (*Relay, error) { return nil, ErrUnsupported }

// SetPump is not implemented on non-Linux platforms.
func (r *Relay) SetPump(on bool) error { return ErrUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *Relay) Close() error { return nil }

// HX711 is not available on non-Linux platforms.
type HX711 struct {
	*loadCell
}

// NewHX711 returns ErrUnsupported on non-Linux platforms.
func NewHX711(dataPin, clockPin int) (*HX711, error) { return nil, ErrUnsupported }

// Close is not implemented on non-Linux platforms.
func (h *HX711) Close() error { return nil }

// Sonar is not available on non-Linux platforms.
type Sonar struct{}

// NewSonar returns ErrUnsupported on non-Linux platforms.
func NewSonar(trigPin, echoPin int) (*Sonar, error) { return nil, ErrUnsupported }

// Distance is not implemented on non-Linux platforms.
func (s *Sonar) Distance() (float64, error) { return 0, ErrUnsupported }

// Close is not implemented on non-Linux platforms.
func (s *Sonar) Close() error { return nil }
