//go:build !linux

package servo

// Hatch is not available on non-Linux platforms.
type Hatch struct{}

// Open returns ErrUnsupported on non-Linux platforms.
func Open(pin int) (*Hatch, error) {
	return nil, ErrUnsupported
}

// SetAngle is not implemented on non-Linux platforms.
func (h *Hatch) SetAngle(deg int) error {
	return ErrUnsupported
}

// Angle is not implemented on non-Linux platforms.
func (h *Hatch) Angle() int {
	return -1
}

// Close is not implemented on non-Linux platforms.
func (h *Hatch) Close() error {
	return nil
}
