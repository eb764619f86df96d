package logic

import "time"

// ButtonEdge is a debounced button transition.
type ButtonEdge string

const (
	EdgePressed  ButtonEdge = "PRESSED"
	EdgeReleased ButtonEdge = "RELEASED"
	EdgeHeld     ButtonEdge = "HELD"
)

// ButtonEvent is emitted on a debounced edge.
type ButtonEvent struct {
	Timestamp time.Time
	Edge      ButtonEdge
}

// buttonState tracks debounce state for the button.
type buttonState struct {
	// Current stable (debounced) state
	Stable bool
	// Pending state during debounce
	Pending *bool
	// Time when pending state was first observed
	PendingSince time.Time
	// Time the current press became stable
	PressedAt time.Time
	// Whether HELD has been emitted for the current press
	HeldSent bool
	// Whether we have established a baseline
	Baselined bool
}

// Button turns raw button samples into debounced edges.
type Button struct {
	debounceDuration time.Duration
	holdDuration     time.Duration
	state            buttonState
	presses          int
}

// NewButton creates a debouncer. holdDuration <= 0 disables HELD.
func NewButton(debounceDuration, holdDuration time.Duration) *Button {
	return &Button{
		debounceDuration: debounceDuration,
		holdDuration:     holdDuration,
	}
}

// Process takes a new sample and returns any edges that should be acted on.
// Edges are only returned after a baseline is established, so a button held
// at startup does not trigger a feeding.
func (b *Button) Process(input Input) []ButtonEvent {
	s := &b.state

	// First time seeing the button
	if !s.Baselined {
		if s.Pending == nil || *s.Pending != input.Pressed {
			s.Pending = boolPtr(input.Pressed)
			s.PendingSince = input.Time
			return nil
		}
		if input.Time.Sub(s.PendingSince) >= b.debounceDuration {
			s.Stable = input.Pressed
			s.Baselined = true
			s.Pending = nil
			// a press held through startup never reports HELD
			s.HeldSent = true
		}
		return nil
	}

	var events []ButtonEvent

	if input.Pressed == s.Stable {
		// No change from stable state, clear any pending
		s.Pending = nil
		if s.Stable && !s.HeldSent && b.holdDuration > 0 && input.Time.Sub(s.PressedAt) >= b.holdDuration {
			s.HeldSent = true
			events = append(events, ButtonEvent{Timestamp: input.Time, Edge: EdgeHeld})
		}
		return events
	}

	// State differs from stable
	if s.Pending == nil || *s.Pending != input.Pressed {
		s.Pending = boolPtr(input.Pressed)
		s.PendingSince = input.Time
		return nil
	}

	if input.Time.Sub(s.PendingSince) < b.debounceDuration {
		return nil
	}

	s.Stable = input.Pressed
	s.Pending = nil
	if s.Stable {
		s.PressedAt = input.Time
		s.HeldSent = false
		b.presses++
		return append(events, ButtonEvent{Timestamp: input.Time, Edge: EdgePressed})
	}
	return append(events, ButtonEvent{Timestamp: input.Time, Edge: EdgeReleased})
}

// IsBaselined returns whether the debouncer has established a baseline.
func (b *Button) IsBaselined() bool {
	return b.state.Baselined
}

// IsPressed returns the debounced state.
func (b *Button) IsPressed() bool {
	return b.state.Stable
}

// Presses returns the number of debounced presses since startup.
func (b *Button) Presses() int {
	return b.presses
}

func boolPtr(v bool) *bool {
	return &v
}
