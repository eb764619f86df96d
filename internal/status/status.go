// Package status provides a thread-safe status tracker for the pet-feeder
// daemon. It doubles as the virtual 16x2 character display and records the
// last published events so HTTP handlers can read them off the control
// goroutine.
package status

import (
	"strings"
	"sync"
	"time"

	"github.com/sweeney/pet-feeder/internal/logger"
	"github.com/sweeney/pet-feeder/internal/logic"
)

// DisplayWidth is the number of characters per display line.
const DisplayWidth = 16

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	HeartbeatMs int64
	TargetGrams float64
	TimeZone    string
	Broker      string
	HTTPPort    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Display is the content of the virtual display.
type Display struct {
	Line1     string
	Line2     string
	Progress  float64 // percent; meaningful when HasBar
	HasBar    bool
	UpdatedAt time.Time
}

// Feeder is the feeding controller as last seen by the control loop.
type Feeder struct {
	Phase     logic.FeedPhase
	SessionID string
	Scheduled bool
	Dispensed float64
	Target    float64
	Retries   int
	Feedings  int
	Last      *logic.FeedingOutcome
	LastAt    time.Time
}

// Water is the water controller as last seen by the control loop.
type Water struct {
	State        logic.WaterState
	EnteredAt    time.Time
	Refills      int
	SensorErrors int
	Last         *logic.WaterReport
	LastAt       time.Time
}

// Schedule is the active feeding schedule.
type Schedule struct {
	Entries []logic.ScheduleEntry
	Next    time.Time
	HasNext bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Display       Display
	Feeder        Feeder
	Water         Water
	Schedule      Schedule
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Feeder:    Feeder{Phase: logic.PhaseIdle, Target: cfg.TargetGrams},
			Water:     Water{State: logic.WaterChecking},
		},
		now: time.Now,
	}
}

// ShowMessage replaces both display lines. Lines are clipped to the display
// width.
func (t *Tracker) ShowMessage(line1, line2 string) {
	line1, line2 = clip(line1), clip(line2)
	t.mu.Lock()
	t.snap.Display = Display{Line1: line1, Line2: line2, UpdatedAt: t.now()}
	t.mu.Unlock()
	logger.Debug("display", "line1", line1, "line2", line2)
}

// ShowProgress draws a bar on the second line, keeping the first.
func (t *Tracker) ShowProgress(percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.mu.Lock()
	t.snap.Display.Line2 = Bar(percent)
	t.snap.Display.Progress = percent
	t.snap.Display.HasBar = true
	t.snap.Display.UpdatedAt = t.now()
	t.mu.Unlock()
}

// Notify records the last feeding outcome or water report. It never fails.
func (t *Tracker) Notify(ev logic.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case ev.Feeding != nil:
		out := *ev.Feeding
		t.snap.Feeder.Last = &out
		t.snap.Feeder.LastAt = ev.Timestamp
	case ev.Water != nil:
		r := *ev.Water
		t.snap.Water.Last = &r
		t.snap.Water.LastAt = ev.Timestamp
	}
	return nil
}

// UpdateFeeder records the feeder phase and the running session, if any.
// Called from runLoop on every tick.
func (t *Tracker) UpdateFeeder(phase logic.FeedPhase, session *logic.FeedingSession, feedings int) {
	t.mu.Lock()
	f := &t.snap.Feeder
	f.Phase = phase
	f.Feedings = feedings
	if session != nil {
		f.SessionID = session.ID
		f.Scheduled = session.Scheduled
		f.Dispensed = session.DispensedWeight
		f.Target = session.TargetWeight
		f.Retries = session.RetryCount
	} else {
		f.SessionID = ""
		f.Scheduled = false
		f.Dispensed = 0
		f.Retries = 0
	}
	t.mu.Unlock()
}

// UpdateWater records the water controller state and counters.
func (t *Tracker) UpdateWater(state logic.WaterState, enteredAt time.Time, refills, sensorErrors int) {
	t.mu.Lock()
	t.snap.Water.State = state
	t.snap.Water.EnteredAt = enteredAt
	t.snap.Water.Refills = refills
	t.snap.Water.SensorErrors = sensorErrors
	t.mu.Unlock()
}

// SetSchedule records the schedule set and the next feeding time.
func (t *Tracker) SetSchedule(entries []logic.ScheduleEntry, next time.Time, ok bool) {
	cp := append([]logic.ScheduleEntry(nil), entries...)
	t.mu.Lock()
	t.snap.Schedule = Schedule{Entries: cp, Next: next, HasNext: ok}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Schedule.Entries = append([]logic.ScheduleEntry(nil), t.snap.Schedule.Entries...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

// Bar renders percent as a DisplayWidth-wide bar of '#'.
func Bar(percent float64) string {
	n := int(percent * DisplayWidth / 100)
	if n < 0 {
		n = 0
	}
	if n > DisplayWidth {
		n = DisplayWidth
	}
	return strings.Repeat("#", n) + strings.Repeat(" ", DisplayWidth-n)
}

func clip(s string) string {
	if r := []rune(s); len(r) > DisplayWidth {
		return string(r[:DisplayWidth])
	}
	return s
}
