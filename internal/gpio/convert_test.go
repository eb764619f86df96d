package gpio

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sweeney/pet-feeder/internal/filter"
)

func TestSignExtend24(t *testing.T) {
	tests := []struct {
		raw  uint32
		want int32
	}{
		{0x000000, 0},
		{0x000001, 1},
		{0x7FFFFF, 8388607},
		{0x800000, -8388608},
		{0xFFFFFF, -1},
		{0x1000005, 5}, // bits above 24 ignored
	}
	for _, tt := range tests {
		if got := signExtend24(tt.raw); got != tt.want {
			t.Errorf("signExtend24(%#x): got %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func countsCell(counts ...int32) *loadCell {
	i := 0
	return newLoadCell(func() bool { return true }, func() (int32, error) {
		v := counts[i%len(counts)]
		i++
		return v, nil
	})
}

func TestLoadCellTareAndScale(t *testing.T) {
	c := countsCell(1000, 1002, 998)
	if err := c.Tare(3); err != nil {
		t.Fatalf("Tare: %v", err)
	}
	if c.Offset() != 1000 {
		t.Errorf("offset: got %v, want 1000", c.Offset())
	}

	c.raw = func() (int32, error) { return 1000 + 10*374, nil }
	c.SetScale(374)
	got, err := c.ReadMass(5)
	if err != nil {
		t.Fatalf("ReadMass: %v", err)
	}
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("mass: got %v, want 10", got)
	}
}

func TestLoadCellSetScaleIgnoresZero(t *testing.T) {
	c := countsCell(0)
	c.SetScale(0)
	if c.factor != DefaultCalibration {
		t.Errorf("factor: got %v", c.factor)
	}
}

func TestLoadCellNotReady(t *testing.T) {
	c := newLoadCell(func() bool { return false }, func() (int32, error) { return 0, nil })

	if _, err := c.Read(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if _, err := c.ReadMass(3); !errors.Is(err, filter.ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
	if err := c.Tare(3); err == nil {
		t.Error("tare should fail without samples")
	}
}

func TestEchoCm(t *testing.T) {
	if got := echoCm(1015 * time.Microsecond); math.Abs(got-17.5) > 1e-9 {
		t.Errorf("got %v, want 17.5", got)
	}
	if got := echoCm(0); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}
