package logic

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/pet-feeder/internal/filter"
)

// ErrFeedingActive is returned by Start while a session is running.
var ErrFeedingActive = errors.New("feeding already in progress")

// FeedPhase is the position of a feeding session in its state machine.
type FeedPhase string

const (
	PhaseIdle         FeedPhase = "IDLE"
	PhaseScaleCheck   FeedPhase = "SCALE_CHECK"
	PhaseBowlCheck    FeedPhase = "BOWL_CHECK"
	PhaseBowlConfirm  FeedPhase = "BOWL_CONFIRM"
	PhaseDispensing   FeedPhase = "DISPENSING"
	PhaseSettling     FeedPhase = "SETTLING"
	PhaseMeasuring    FeedPhase = "MEASURING"
	PhaseConfirming   FeedPhase = "CONFIRMING"
	PhaseFinalSettle  FeedPhase = "FINAL_SETTLE"
	PhaseFinalMeasure FeedPhase = "FINAL_MEASURE"
	PhaseDone         FeedPhase = "DONE"
)

// dispensing reports whether the phase counts toward the feed timeout.
func (p FeedPhase) dispensing() bool {
	switch p {
	case PhaseDispensing, PhaseSettling, PhaseMeasuring, PhaseConfirming:
		return true
	}
	return false
}

// FeedConfig is the feeding configuration surface. All thresholds are
// fractions of TargetGrams.
type FeedConfig struct {
	TargetGrams        float64
	ThresholdGrams     float64 // bowl mass that asks for confirmation
	HopperGrams        float64 // full hopper, for the remaining food estimate
	PreCloseFactor     float64 // >= 1 disables pre-close
	CompleteFactor     float64
	ExcessFactor       float64
	Timeout            time.Duration
	MaxRetry           int
	ReadInterval       time.Duration
	ScaleTimeout       time.Duration
	ScaleRetries       int
	ConfirmTimeout     time.Duration
	SettleTime         time.Duration
	SettleFinal        time.Duration
	BowlSamples        int
	SettleSamples      int
	FinalSamples       int
	ReachConfirmations int
	OpenAngle          int
	CloseAngle         int
	DisplayInterval    time.Duration
}

// DefaultFeedConfig returns the stock configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		TargetGrams:        65,
		ThresholdGrams:     50,
		HopperGrams:        200,
		PreCloseFactor:     0.9,
		CompleteFactor:     0.95,
		ExcessFactor:       1.25,
		Timeout:            30 * time.Second,
		MaxRetry:           2,
		ReadInterval:       100 * time.Millisecond,
		ScaleTimeout:       3 * time.Second,
		ScaleRetries:       5,
		ConfirmTimeout:     20 * time.Second,
		SettleTime:         2 * time.Second,
		SettleFinal:        2 * time.Second,
		BowlSamples:        5,
		SettleSamples:      5,
		FinalSamples:       5,
		ReachConfirmations: 2,
		OpenAngle:          60,
		CloseAngle:         180,
		DisplayInterval:    500 * time.Millisecond,
	}
}

const movingAverageSize = 3

// FeedingSession is the state of one feeding invocation.
type FeedingSession struct {
	ID              string
	Scheduled       bool
	InitialWeight   float64
	TargetWeight    float64
	DispensedWeight float64
	RetryCount      int
	Phase           FeedPhase
	PreCloseDone    bool
	Terminal        Terminal

	StartedAt         time.Time
	PhaseEnteredAt    time.Time
	DispenseStartedAt time.Time

	nextRead      time.Time
	nextDisplay   time.Time
	window        *filter.Window
	acc           *filter.Accumulator
	unready       int
	confirmations int
}

// FeedInput is one control tick for the feeder.
type FeedInput struct {
	Now     time.Time
	Pressed bool // debounced press edge since the previous tick
}

// FeedingController meters food through the hatch from scale feedback.
// Start begins a session; Tick advances it and must be called regularly.
type FeedingController struct {
	cfg     FeedConfig
	scale   Scale
	hatch   Hatch
	display Display
	notify  Notifier
	newID   func() string
	water   func() (float64, bool)

	session  *FeedingSession
	hatchErr error
	feedings int
}

// NewFeedingController wires the controller to its collaborators. newID
// generates session identifiers and may be nil.
func NewFeedingController(cfg FeedConfig, scale Scale, hatch Hatch, display Display, notify Notifier, newID func() string) *FeedingController {
	return &FeedingController{
		cfg:     cfg,
		scale:   scale,
		hatch:   hatch,
		display: display,
		notify:  notify,
		newID:   newID,
	}
}

// SetWaterLevel supplies the water level reported with each outcome. fn
// returns false when no reading is available.
func (c *FeedingController) SetWaterLevel(fn func() (float64, bool)) {
	c.water = fn
}

// Active reports whether a session is running.
func (c *FeedingController) Active() bool {
	return c.session != nil
}

// Dispensing reports whether a session is in a phase that owns the hatch.
func (c *FeedingController) Dispensing() bool {
	return c.session != nil && c.session.Phase.dispensing()
}

// Phase returns the current phase, PhaseIdle when no session runs.
func (c *FeedingController) Phase() FeedPhase {
	if c.session == nil {
		return PhaseIdle
	}
	return c.session.Phase
}

// Session returns a copy of the running session, or false when idle.
func (c *FeedingController) Session() (FeedingSession, bool) {
	if c.session == nil {
		return FeedingSession{}, false
	}
	return *c.session, true
}

// Feedings returns the number of sessions that have finished.
func (c *FeedingController) Feedings() int {
	return c.feedings
}

// HatchError returns the last error from the hatch actuator, if any.
func (c *FeedingController) HatchError() error {
	return c.hatchErr
}

// Start begins a feeding session.
func (c *FeedingController) Start(now time.Time, scheduled bool) error {
	if c.session != nil {
		return ErrFeedingActive
	}
	s := &FeedingSession{
		Scheduled:    scheduled,
		TargetWeight: c.cfg.TargetGrams,
		StartedAt:    now,
	}
	if c.newID != nil {
		s.ID = c.newID()
	}
	c.session = s
	c.closeHatch()
	c.enter(PhaseScaleCheck, now)

	c.display.ShowMessage("Feeding time", "Checking scale")
	c.publish(Event{Timestamp: now, Type: EventFeedingStart})
	return nil
}

// Tick advances the running session by one step. It returns the outcome on
// the tick the session finishes and nil otherwise, including when idle.
func (c *FeedingController) Tick(in FeedInput) *FeedingOutcome {
	s := c.session
	if s == nil {
		return nil
	}
	now := in.Now

	if s.Phase.dispensing() && now.Sub(s.DispenseStartedAt) >= c.cfg.Timeout {
		c.closeHatch()
		c.display.ShowMessage("Feed timeout!", "Hatch closed")
		c.terminate(TerminalTimeout, now)
		return nil
	}

	switch s.Phase {
	case PhaseScaleCheck:
		c.tickScaleCheck(now)
	case PhaseBowlCheck:
		c.tickBowlCheck(now)
	case PhaseBowlConfirm:
		c.tickBowlConfirm(now, in.Pressed)
	case PhaseDispensing:
		c.tickDispensing(now)
	case PhaseSettling:
		if now.Sub(s.PhaseEnteredAt) >= c.cfg.SettleTime {
			c.beginMeasure(PhaseMeasuring, c.cfg.SettleSamples, now)
		}
	case PhaseMeasuring:
		c.tickMeasuring(now)
	case PhaseConfirming:
		c.tickConfirming(now)
	case PhaseFinalSettle:
		if now.Sub(s.PhaseEnteredAt) >= c.cfg.SettleFinal {
			c.display.ShowMessage("Measuring final", "weight...")
			c.beginMeasure(PhaseFinalMeasure, c.cfg.FinalSamples, now)
		}
	case PhaseFinalMeasure:
		c.tickFinalMeasure(now)
	}

	if s.Phase == PhaseDone {
		return c.finish(now)
	}
	return nil
}

// Sleeper is the blocking wait used by Run.
type Sleeper interface {
	Now() time.Time
	Wait(d time.Duration)
	Slice() time.Duration
}

// Run performs one complete feeding cycle, blocking until it ends. It waits
// one slice between ticks so background work keeps running. pressed reports
// a confirmation press and may be nil.
func (c *FeedingController) Run(scheduled bool, w Sleeper, pressed func() bool) (FeedingOutcome, error) {
	if err := c.Start(w.Now(), scheduled); err != nil {
		return FeedingOutcome{}, err
	}
	for {
		in := FeedInput{Now: w.Now()}
		if pressed != nil && c.Phase() == PhaseBowlConfirm {
			in.Pressed = pressed()
		}
		if out := c.Tick(in); out != nil {
			return *out, nil
		}
		w.Wait(w.Slice())
	}
}

func (c *FeedingController) enter(p FeedPhase, now time.Time) {
	c.session.Phase = p
	c.session.PhaseEnteredAt = now
}

func (c *FeedingController) tickScaleCheck(now time.Time) {
	s := c.session
	if c.scale.Ready() {
		c.display.ShowMessage("Feeding time", "Checking bowl...")
		c.beginMeasure(PhaseBowlCheck, c.cfg.BowlSamples, now)
		return
	}
	if now.Sub(s.PhaseEnteredAt) >= c.cfg.ScaleTimeout {
		c.display.ShowMessage("Error", "Scale not ready!")
		c.terminate(TerminalErrorScale, now)
	}
}

func (c *FeedingController) tickBowlCheck(now time.Time) {
	s := c.session
	if !c.sampleDue(now) {
		return
	}
	c.sample()
	if !s.acc.Done() {
		return
	}
	r, err := s.acc.Mean()
	if err != nil {
		c.display.ShowMessage("Error", "Scale no reading")
		c.terminate(TerminalErrorScale, now)
		return
	}
	s.InitialWeight = math.Max(r.Value, 0)

	if s.InitialWeight >= c.cfg.ThresholdGrams {
		c.display.ShowMessage("Food detected!", fmt.Sprintf("Weight: %.1fg", s.InitialWeight))
		c.enter(PhaseBowlConfirm, now)
		s.nextDisplay = now
		return
	}
	c.startDispensing(now)
}

func (c *FeedingController) tickBowlConfirm(now time.Time, pressed bool) {
	s := c.session
	elapsed := now.Sub(s.PhaseEnteredAt)
	if pressed {
		c.display.ShowMessage("Continuing...", "Adding more food")
		c.startDispensing(now)
		return
	}
	if elapsed >= c.cfg.ConfirmTimeout {
		c.display.ShowMessage("Feeding canceled", fmt.Sprintf("%.1fg in bowl", s.InitialWeight))
		c.terminate(TerminalCancelled, now)
		return
	}
	if !now.Before(s.nextDisplay) {
		s.nextDisplay = now.Add(time.Second)
		left := int((c.cfg.ConfirmTimeout - elapsed) / time.Second)
		c.display.ShowMessage("Food already in", fmt.Sprintf("Btn:feed Wait:%d", left))
	}
}

func (c *FeedingController) startDispensing(now time.Time) {
	s := c.session
	s.window = filter.NewWindow(movingAverageSize, s.InitialWeight)
	s.DispenseStartedAt = now
	s.unready = 0
	c.openHatch(now)
	c.display.ShowMessage("Starting feed", "Opening hatch...")
}

func (c *FeedingController) openHatch(now time.Time) {
	c.setHatch(c.cfg.OpenAngle)
	c.enter(PhaseDispensing, now)
	c.session.nextRead = now.Add(c.cfg.ReadInterval)
}

func (c *FeedingController) closeHatch() {
	c.setHatch(c.cfg.CloseAngle)
}

func (c *FeedingController) setHatch(angle int) {
	if err := c.hatch.SetAngle(angle); err != nil {
		c.hatchErr = err
	}
}

func (c *FeedingController) tickDispensing(now time.Time) {
	s := c.session
	if !c.sampleDue(now) {
		return
	}
	v, ok := c.poll(now)
	if !ok {
		return
	}
	s.DispensedWeight = c.dispensed(s.window.Push(v))
	target := s.TargetWeight

	switch {
	case s.DispensedWeight >= target*c.cfg.ExcessFactor:
		c.closeHatch()
		c.display.ShowMessage("Warning!", "Excess food!")
		c.terminate(TerminalCompleteExcess, now)

	case c.preCloseEnabled() && !s.PreCloseDone && s.DispensedWeight >= target*c.cfg.PreCloseFactor:
		// material in flight keeps landing after the hatch closes
		c.closeHatch()
		s.PreCloseDone = true
		c.display.ShowMessage("Almost there...", "Food settling")
		c.enter(PhaseSettling, now)

	case !s.PreCloseDone && s.DispensedWeight >= target:
		c.closeHatch()
		s.confirmations = 0
		c.enter(PhaseConfirming, now)

	default:
		c.showProgress(now)
	}
}

// poll reads the scale during dispensing. Unready polls are tolerated up to
// ScaleRetries in a row; past that the session ends in ERROR_SCALE.
func (c *FeedingController) poll(now time.Time) (float64, bool) {
	s := c.session
	if c.scale.Ready() {
		if v, err := c.scale.Read(); err == nil {
			s.unready = 0
			return v, true
		}
	}
	s.unready++
	if s.unready > c.cfg.ScaleRetries {
		c.closeHatch()
		c.display.ShowMessage("Scale error!", "Closing hatch")
		c.terminate(TerminalErrorScale, now)
	}
	return 0, false
}

func (c *FeedingController) tickMeasuring(now time.Time) {
	s := c.session
	if !c.sampleDue(now) {
		return
	}
	c.sample()
	if !s.acc.Done() {
		return
	}
	r, err := s.acc.Mean()
	if err != nil {
		c.display.ShowMessage("Scale error!", "No settled weight")
		c.terminate(TerminalErrorScale, now)
		return
	}
	s.window.Fill(r.Value)
	s.DispensedWeight = c.dispensed(r.Value)
	target := s.TargetWeight

	switch {
	case s.DispensedWeight >= target*c.cfg.ExcessFactor:
		c.display.ShowMessage("Warning!", "Excess food!")
		c.terminate(TerminalCompleteExcess, now)

	case s.DispensedWeight >= target*c.cfg.CompleteFactor:
		c.display.ShowMessage("Target reached!", fmt.Sprintf("Dispensed: %.1fg", s.DispensedWeight))
		c.terminate(TerminalComplete, now)

	case s.RetryCount < c.cfg.MaxRetry:
		s.RetryCount++
		s.PreCloseDone = false
		c.display.ShowMessage("Need more food", fmt.Sprintf("Retry #%d", s.RetryCount))
		c.openHatch(now)

	default:
		c.display.ShowMessage("Warning: Only", fmt.Sprintf("%.1fg dispensed", s.DispensedWeight))
		c.terminate(TerminalCompletePartial, now)
	}
}

// tickConfirming requires ReachConfirmations consecutive polls at or above
// target before accepting a direct reach. A poll below target was a spike:
// the hatch reopens and dispensing resumes.
func (c *FeedingController) tickConfirming(now time.Time) {
	s := c.session
	if !c.sampleDue(now) {
		return
	}
	v, ok := c.poll(now)
	if !ok {
		return
	}
	s.DispensedWeight = c.dispensed(s.window.Push(v))
	target := s.TargetWeight

	switch {
	case s.DispensedWeight >= target*c.cfg.ExcessFactor:
		c.display.ShowMessage("Warning!", "Excess food!")
		c.terminate(TerminalCompleteExcess, now)
	case s.DispensedWeight >= target:
		s.confirmations++
		if s.confirmations >= c.cfg.ReachConfirmations {
			c.display.ShowMessage("Target reached!", fmt.Sprintf("Dispensed: %.1fg", s.DispensedWeight))
			c.terminate(TerminalComplete, now)
		}
	default:
		c.openHatch(now)
	}
}

func (c *FeedingController) tickFinalMeasure(now time.Time) {
	s := c.session
	if !c.sampleDue(now) {
		return
	}
	c.sample()
	if !s.acc.Done() {
		return
	}
	// keep the last dispensing figure when the final pass got nothing
	if r, err := s.acc.Mean(); err == nil {
		s.DispensedWeight = c.dispensed(r.Value)
	}
	c.enter(PhaseDone, now)
}

// terminate records the terminal outcome, forces the hatch closed and moves
// to the final measurement or straight to done.
func (c *FeedingController) terminate(t Terminal, now time.Time) {
	s := c.session
	s.Terminal = t
	c.closeHatch()
	if t.measured() {
		c.enter(PhaseFinalSettle, now)
		return
	}
	c.enter(PhaseDone, now)
}

func (c *FeedingController) finish(now time.Time) *FeedingOutcome {
	s := c.session
	out := &FeedingOutcome{
		SessionID:      s.ID,
		Scheduled:      s.Scheduled,
		Terminal:       s.Terminal,
		InitialGrams:   s.InitialWeight,
		TargetGrams:    s.TargetWeight,
		DispensedGrams: s.DispensedWeight,
		Retries:        s.RetryCount,
		Duration:       now.Sub(s.StartedAt),
	}
	if s.TargetWeight > 0 {
		out.AccuracyPct = s.DispensedWeight / s.TargetWeight * 100
	}
	out.Band = BandFor(out.AccuracyPct)
	out.FoodLevelPct = FoodLevel(c.cfg.HopperGrams, s.DispensedWeight)
	if c.water != nil {
		if pct, ok := c.water(); ok {
			out.WaterLevelPct = &pct
		}
	}

	if s.Terminal.measured() {
		c.display.ShowMessage("Feeding complete", fmt.Sprintf("Added: %.1fg", out.DispensedGrams))
	}
	c.publish(Event{Timestamp: now, Type: EventFeedingComplete, Feeding: out})

	c.session = nil
	c.feedings++
	return out
}

// FoodLevel estimates the hopper fill after dispensing grams, in percent.
func FoodLevel(hopper, dispensed float64) float64 {
	if hopper <= 0 {
		return 0
	}
	return math.Min(math.Max((hopper-dispensed)/hopper*100, 0), 100)
}

func (c *FeedingController) beginMeasure(p FeedPhase, n int, now time.Time) {
	c.session.acc = filter.NewAccumulator(n)
	c.session.nextRead = now
	c.enter(p, now)
}

// sampleDue reports whether a scale read is due and schedules the next one.
func (c *FeedingController) sampleDue(now time.Time) bool {
	s := c.session
	if now.Before(s.nextRead) {
		return false
	}
	s.nextRead = now.Add(c.cfg.ReadInterval)
	return true
}

// sample makes one accumulator attempt.
func (c *FeedingController) sample() {
	acc := c.session.acc
	if !c.scale.Ready() {
		acc.Miss()
		return
	}
	v, err := c.scale.Read()
	if err != nil {
		acc.Miss()
		return
	}
	acc.Add(v)
}

// dispensed converts a bowl mass into grams dispensed, clamped at zero.
func (c *FeedingController) dispensed(mass float64) float64 {
	return math.Max(mass-c.session.InitialWeight, 0)
}

func (c *FeedingController) preCloseEnabled() bool {
	return c.cfg.PreCloseFactor > 0 && c.cfg.PreCloseFactor < 1
}

func (c *FeedingController) showProgress(now time.Time) {
	s := c.session
	if now.Before(s.nextDisplay) {
		return
	}
	s.nextDisplay = now.Add(c.cfg.DisplayInterval)
	pct := math.Min(s.DispensedWeight/s.TargetWeight*100, 100)
	if pct < 80 {
		c.display.ShowMessage(fmt.Sprintf("Feeding: %d%%", int(pct)), fmt.Sprintf("Target: %.0fg", s.TargetWeight))
		return
	}
	c.display.ShowProgress(pct)
}

func (c *FeedingController) publish(ev Event) {
	if c.notify == nil {
		return
	}
	ev.SessionID = c.session.ID
	ev.Scheduled = c.session.Scheduled
	c.notify.Notify(ev)
}
