package logic

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/pet-feeder/internal/filter"
)

// WaterState is the refill cycle position.
type WaterState string

const (
	WaterChecking  WaterState = "CHECKING"
	WaterRefilling WaterState = "REFILLING"
	WaterCooldown  WaterState = "COOLDOWN"
)

// WaterConfig is the water configuration surface. Distances are in cm
// measured from the sensor down to the surface.
type WaterConfig struct {
	CriticalHeight   float64
	EmptyDistance    float64
	FullDistance     float64
	MaxDistance      float64
	PingSamples      int
	CheckInterval    time.Duration
	RefillDuration   time.Duration
	CooldownPeriod   time.Duration
	ProgressInterval time.Duration
	DisplayInterval  time.Duration
}

// DefaultWaterConfig returns the stock configuration.
func DefaultWaterConfig() WaterConfig {
	return WaterConfig{
		CriticalHeight:   2,
		EmptyDistance:    19,
		FullDistance:     16,
		MaxDistance:      400,
		PingSamples:      5,
		CheckInterval:    10 * time.Second,
		RefillDuration:   10 * time.Second,
		CooldownPeriod:   5 * time.Minute,
		ProgressInterval: 200 * time.Millisecond,
		DisplayInterval:  time.Second,
	}
}

// WaterLevel converts a measured distance into water height and percentage.
func (c WaterConfig) WaterLevel(distance float64) (height, pct float64) {
	span := c.EmptyDistance - c.FullDistance
	height = math.Min(math.Max(c.EmptyDistance-distance, 0), span)
	if span > 0 {
		pct = height / span * 100
	}
	return height, pct
}

// WaterController runs the check → refill → cooldown cycle.
type WaterController struct {
	cfg     WaterConfig
	sensor  Rangefinder
	pump    Pump
	display Display
	notify  Notifier
	yield   func()

	state       WaterState
	enteredAt   time.Time
	lastCheck   time.Time
	nextDisplay time.Time
	last        *WaterReport
	refills     int
	sensorErrs  int
	pumpErr     error
}

// NewWaterController creates a controller in CHECKING. yield runs between
// distance samples and may be nil.
func NewWaterController(cfg WaterConfig, sensor Rangefinder, pump Pump, display Display, notify Notifier, yield func()) *WaterController {
	return &WaterController{
		cfg:     cfg,
		sensor:  sensor,
		pump:    pump,
		display: display,
		notify:  notify,
		yield:   yield,
		state:   WaterChecking,
	}
}

// State returns the current cycle state.
func (w *WaterController) State() WaterState {
	return w.state
}

// EnteredAt returns when the current state was entered.
func (w *WaterController) EnteredAt() time.Time {
	return w.enteredAt
}

// Last returns the most recent level reading, if any.
func (w *WaterController) Last() (WaterReport, bool) {
	if w.last == nil {
		return WaterReport{}, false
	}
	return *w.last, true
}

// Refills returns the number of completed refills.
func (w *WaterController) Refills() int {
	return w.refills
}

// SensorErrors returns the number of rejected distance readings.
func (w *WaterController) SensorErrors() int {
	return w.sensorErrs
}

// PumpError returns the last relay error, if any.
func (w *WaterController) PumpError() error {
	return w.pumpErr
}

// Tick advances the cycle by at most one step. It is safe to call at any
// cadence: every state throttles itself against its own timers.
func (w *WaterController) Tick(now time.Time) {
	switch w.state {
	case WaterChecking:
		w.tickChecking(now)
	case WaterRefilling:
		w.tickRefilling(now)
	case WaterCooldown:
		w.tickCooldown(now)
	}
}

// CheckDue reports whether the next Tick in CHECKING would read the sensor.
func (w *WaterController) CheckDue(now time.Time) bool {
	return w.state == WaterChecking && (w.lastCheck.IsZero() || now.Sub(w.lastCheck) >= w.cfg.CheckInterval)
}

func (w *WaterController) tickChecking(now time.Time) {
	if !w.CheckDue(now) {
		return
	}
	w.lastCheck = now

	r, err := filter.MedianOf(w.cfg.PingSamples, w.readDistance, w.yield)
	if err != nil || r.Value <= 0 || r.Value > w.cfg.MaxDistance {
		w.sensorErrs++
		w.display.ShowMessage("Sensor Error", "Check ultrasonic")
		w.publish(now, &WaterReport{Status: WaterStatusSensorError, State: w.state, DistanceCm: r.Value})
		return
	}

	height, pct := w.cfg.WaterLevel(r.Value)
	report := &WaterReport{State: w.state, DistanceCm: r.Value, HeightCm: height, LevelPct: pct}
	w.last = report

	if height > w.cfg.CriticalHeight {
		report.Status = WaterStatusOK
		w.display.ShowMessage("Water Level:", fmt.Sprintf("OK %.1fcm (%d%%)", height, int(pct)))
		w.display.ShowProgress(pct)
		w.publish(now, report)
		return
	}

	if err := w.pump.SetPump(true); err != nil {
		w.pumpErr = err
		w.display.ShowMessage("Water low!", "Pump fault")
		return
	}
	w.enter(WaterRefilling, now)
	report.Status = WaterStatusRefilling
	report.State = w.state
	w.display.ShowMessage("Water low!", "Refilling...")
	w.publish(now, report)
}

func (w *WaterController) tickRefilling(now time.Time) {
	elapsed := now.Sub(w.enteredAt)
	if elapsed < w.cfg.RefillDuration {
		if !now.Before(w.nextDisplay) {
			w.nextDisplay = now.Add(w.cfg.ProgressInterval)
			w.display.ShowProgress(float64(elapsed) / float64(w.cfg.RefillDuration) * 100)
		}
		return
	}

	// stay in REFILLING until the relay confirms off
	if err := w.pump.SetPump(false); err != nil {
		w.pumpErr = err
		return
	}
	w.refills++
	w.enter(WaterCooldown, now)
	w.display.ShowMessage("Refill complete", fmt.Sprintf("Cooldown: %d min", int(w.cfg.CooldownPeriod.Minutes())))
	w.publish(now, &WaterReport{Status: WaterStatusRefilled, State: w.state, LevelPct: 100})
}

func (w *WaterController) tickCooldown(now time.Time) {
	elapsed := now.Sub(w.enteredAt)
	if elapsed < w.cfg.CooldownPeriod {
		if !now.Before(w.nextDisplay) {
			w.nextDisplay = now.Add(w.cfg.DisplayInterval)
			left := int((w.cfg.CooldownPeriod - elapsed) / time.Second)
			w.display.ShowMessage("Water cooldown", fmt.Sprintf("%d:%02d left", left/60, left%60))
		}
		return
	}
	w.enter(WaterChecking, now)
	// check on the very next tick
	w.lastCheck = time.Time{}
	w.publish(now, &WaterReport{Status: WaterStatusReady, State: w.state, LevelPct: 100})
}

func (w *WaterController) enter(s WaterState, now time.Time) {
	w.state = s
	w.enteredAt = now
	w.nextDisplay = now
}

// readDistance treats "no echo" as a failed sample.
func (w *WaterController) readDistance() (float64, error) {
	d, err := w.sensor.Distance()
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errNoEcho
	}
	return d, nil
}

var errNoEcho = errors.New("no echo")

func (w *WaterController) publish(now time.Time, r *WaterReport) {
	if w.notify == nil {
		return
	}
	w.notify.Notify(Event{Timestamp: now, Type: EventWaterStatus, Water: r})
}
