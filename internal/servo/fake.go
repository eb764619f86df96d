package servo

import "sync"

// FakeHatch records commanded angles.
type FakeHatch struct {
	mu     sync.Mutex
	Angles []int
	Err    error
	Closed bool
}

// SetAngle records deg. With Err set the command fails and is not applied.
func (f *FakeHatch) SetAngle(deg int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Angles = append(f.Angles, deg)
	return nil
}

// Angle returns the last applied angle, -1 if none.
func (f *FakeHatch) Angle() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Angles) == 0 {
		return -1
	}
	return f.Angles[len(f.Angles)-1]
}

// Close marks the hatch closed.
func (f *FakeHatch) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
