package logic

import (
	"errors"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// recDisplay records display calls.
type recDisplay struct {
	Lines    [][2]string
	Progress []float64
}

func (d *recDisplay) ShowMessage(l1, l2 string) { d.Lines = append(d.Lines, [2]string{l1, l2}) }
func (d *recDisplay) ShowProgress(p float64)    { d.Progress = append(d.Progress, p) }

func (d *recDisplay) saw(line1 string) bool {
	for _, l := range d.Lines {
		if l[0] == line1 {
			return true
		}
	}
	return false
}

// recNotifier records events.
type recNotifier struct {
	Events []Event
	Err    error
}

func (n *recNotifier) Notify(e Event) error {
	n.Events = append(n.Events, e)
	return n.Err
}

func (n *recNotifier) ofType(t EventType) []Event {
	var out []Event
	for _, e := range n.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

const (
	openAngle  = 60
	closeAngle = 180
)

// hopper simulates the hatch and the bowl on the scale. While open every
// read adds flow grams until the hopper runs dry; closing lands inFlight.
type hopper struct {
	mass      float64
	open      bool
	flow      float64
	inFlight  float64
	remaining float64 // grams left in the hopper, < 0 means unlimited
	ready     bool
	readErr   error
	angles    []int
}

func newHopper(flow, inFlight float64) *hopper {
	return &hopper{flow: flow, inFlight: inFlight, remaining: -1, ready: true}
}

func (h *hopper) SetAngle(a int) error {
	h.angles = append(h.angles, a)
	wasOpen := h.open
	h.open = a == openAngle
	if wasOpen && !h.open {
		h.mass += h.take(h.inFlight)
	}
	return nil
}

func (h *hopper) take(g float64) float64 {
	if h.remaining < 0 {
		return g
	}
	if g > h.remaining {
		g = h.remaining
	}
	h.remaining -= g
	return g
}

func (h *hopper) Ready() bool { return h.ready }

func (h *hopper) Read() (float64, error) {
	if h.readErr != nil {
		return 0, h.readErr
	}
	if h.open {
		h.mass += h.take(h.flow)
	}
	return h.mass, nil
}

// scriptScale replays ramp values while the hatch is open and returns
// settled once it has been closed after opening.
type scriptScale struct {
	hatch   *fakeHatch
	initial float64
	ramp    []float64
	settled float64
	i       int
}

func (s *scriptScale) Ready() bool { return true }

func (s *scriptScale) Read() (float64, error) {
	switch {
	case !s.hatch.everOpened:
		return s.initial, nil
	case s.hatch.open:
		v := s.ramp[s.i]
		if s.i < len(s.ramp)-1 {
			s.i++
		}
		return v, nil
	}
	return s.settled, nil
}

type fakeHatch struct {
	open       bool
	everOpened bool
	angles     []int
	err        error
}

func (h *fakeHatch) SetAngle(a int) error {
	h.angles = append(h.angles, a)
	if h.err != nil {
		return h.err
	}
	h.open = a == openAngle
	h.everOpened = h.everOpened || h.open
	return nil
}

var errSensor = errors.New("sensor fault")
