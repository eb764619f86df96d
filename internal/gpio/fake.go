package gpio

import (
	"errors"
	"sync"
)

// FakeButton is a test double that returns scripted button samples.
type FakeButton struct {
	// Samples contains scripted pressed values to return.
	// Each call to Pressed() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Pressed()
	ReadError error
}

// NewFakeButton creates a FakeButton with the given samples.
func NewFakeButton(samples ...bool) *FakeButton {
	return &FakeButton{Samples: samples}
}

// Pressed returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeButton) Pressed() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Close marks the button as closed.
func (f *FakeButton) Close() error {
	f.Closed = true
	return nil
}

// FakeRelay records pump commands.
type FakeRelay struct {
	mu     sync.Mutex
	on     bool
	Calls  []bool
	Err    error
	Closed bool
}

// SetPump records the command and, unless Err is set, applies it.
func (f *FakeRelay) SetPump(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, on)
	if f.Err != nil {
		return f.Err
	}
	f.on = on
	return nil
}

// On reports the relay state.
func (f *FakeRelay) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Close switches the relay off.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.Closed = true
	return nil
}

// FakeScale returns scripted mass readings in grams.
type FakeScale struct {
	// Masses is consumed one value per Read; the last value repeats.
	Masses []float64
	index  int

	NotReady  bool
	ReadError error
	Reads     int
	Tared     bool
}

// NewFakeScale creates a FakeScale with the given readings.
func NewFakeScale(masses ...float64) *FakeScale {
	return &FakeScale{Masses: masses}
}

// Ready reports whether a reading is available.
func (f *FakeScale) Ready() bool {
	return !f.NotReady
}

// Read returns the next scripted mass.
func (f *FakeScale) Read() (float64, error) {
	f.Reads++
	if f.NotReady {
		return 0, ErrNotReady
	}
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Masses) == 0 {
		return 0, errors.New("no masses configured")
	}
	v := f.Masses[f.index]
	if f.index < len(f.Masses)-1 {
		f.index++
	}
	return v, nil
}

// ReadMass returns the next scripted mass.
func (f *FakeScale) ReadMass(samples int) (float64, error) {
	return f.Read()
}

// Tare records the call.
func (f *FakeScale) Tare(samples int) error {
	if f.NotReady {
		return ErrNotReady
	}
	f.Tared = true
	return nil
}

// FakeSonar returns scripted distances in centimetres.
type FakeSonar struct {
	// Distances is consumed one value per call; the last value repeats.
	Distances []float64
	index     int

	Err   error
	Pings int
}

// NewFakeSonar creates a FakeSonar with the given distances.
func NewFakeSonar(distances ...float64) *FakeSonar {
	return &FakeSonar{Distances: distances}
}

// Distance returns the next scripted distance. 0 means no echo.
func (f *FakeSonar) Distance() (float64, error) {
	f.Pings++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Distances) == 0 {
		return 0, nil
	}
	v := f.Distances[f.index]
	if f.index < len(f.Distances)-1 {
		f.index++
	}
	return v, nil
}
