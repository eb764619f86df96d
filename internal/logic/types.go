// Package logic contains the pure control logic of the feeder: the feeding
// dispense controller, the water refill state machine, the feeding schedule
// and the debounced button.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters; hardware is reached
// through the small interfaces below.
package logic

import "time"

// Scale is the load cell as seen by the feeder.
type Scale interface {
	// Ready reports whether a conversion is available.
	Ready() bool
	// Read returns one mass sample in grams. May be negative due to drift.
	Read() (float64, error)
}

// Rangefinder measures distance to the water surface.
type Rangefinder interface {
	// Distance returns centimetres; 0 means no echo.
	Distance() (float64, error)
}

// Hatch is the food gate actuator.
type Hatch interface {
	SetAngle(deg int) error
}

// Pump is the water refill relay.
type Pump interface {
	SetPump(on bool) error
}

// Display is a fire-and-forget status sink (the 16x2 character display).
type Display interface {
	ShowMessage(line1, line2 string)
	ShowProgress(percent float64)
}

// Notifier publishes events outward. Errors are logged by the caller's
// implementation and never retried by the control logic.
type Notifier interface {
	Notify(event Event) error
}

// EventType identifies a published event.
type EventType string

const (
	EventFeedingStart    EventType = "feeding_start"
	EventFeedingComplete EventType = "feeding_complete"
	EventWaterStatus     EventType = "water_status"
)

// Event is a status update published to the network and display collaborators.
type Event struct {
	Timestamp time.Time
	Type      EventType
	SessionID string
	Scheduled bool
	Feeding   *FeedingOutcome
	Water     *WaterReport
}

// Terminal classifies how a feeding session ended.
type Terminal string

const (
	TerminalNone            Terminal = ""
	TerminalComplete        Terminal = "COMPLETE"
	TerminalCompletePartial Terminal = "COMPLETE_PARTIAL"
	TerminalCompleteExcess  Terminal = "COMPLETE_EXCESS"
	TerminalTimeout         Terminal = "TIMEOUT"
	TerminalErrorScale      Terminal = "ERROR_SCALE"
	TerminalCancelled       Terminal = "CANCELLED"
)

// measured reports whether the terminal is followed by a final settle-and-measure.
func (t Terminal) measured() bool {
	switch t {
	case TerminalComplete, TerminalCompletePartial, TerminalCompleteExcess, TerminalTimeout:
		return true
	}
	return false
}

// Band is the qualitative accuracy of a feeding.
type Band string

const (
	BandPerfect    Band = "perfect"
	BandAcceptable Band = "acceptable"
	BandUnderfed   Band = "underfed"
	BandOverfed    Band = "overfed"
)

// BandFor classifies an accuracy percentage.
func BandFor(accuracyPct float64) Band {
	switch {
	case accuracyPct >= 95 && accuracyPct <= 105:
		return BandPerfect
	case accuracyPct < 80:
		return BandUnderfed
	case accuracyPct > 120:
		return BandOverfed
	}
	return BandAcceptable
}

// FeedingOutcome is the result of one feeding session.
type FeedingOutcome struct {
	SessionID      string
	Scheduled      bool
	Terminal       Terminal
	InitialGrams   float64
	TargetGrams    float64
	DispensedGrams float64
	AccuracyPct    float64
	Band           Band
	Retries        int
	Duration       time.Duration
	FoodLevelPct   float64
	WaterLevelPct  *float64 // nil without a valid water reading
}

// WaterStatus is the water state published outward.
type WaterStatus string

const (
	WaterStatusOK          WaterStatus = "ok"
	WaterStatusRefilling   WaterStatus = "refilling"
	WaterStatusRefilled    WaterStatus = "refilled"
	WaterStatusReady       WaterStatus = "ready"
	WaterStatusSensorError WaterStatus = "sensor_error"
)

// WaterReport describes a water level reading or transition.
type WaterReport struct {
	Status     WaterStatus
	State      WaterState
	DistanceCm float64
	HeightCm   float64
	LevelPct   float64
}

// Input is a single sample of the feed button.
type Input struct {
	Pressed bool // already debounced at the electrical level, true = held down
	Time    time.Time
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Feedings  int
	Refills   int
}
