package main

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/pet-feeder/internal/coop"
	"github.com/sweeney/pet-feeder/internal/gpio"
	"github.com/sweeney/pet-feeder/internal/logger"
	"github.com/sweeney/pet-feeder/internal/logic"
	"github.com/sweeney/pet-feeder/internal/mqtt"
	"github.com/sweeney/pet-feeder/internal/status"
	"github.com/sweeney/pet-feeder/internal/web"
)

// Button timing. The switch is debounced in software only.
const (
	buttonDebounce = 50 * time.Millisecond
	buttonHold     = 2 * time.Second
)

// waterPoll is how often the water controller is advanced. It throttles its
// own sensor reads; this only bounds how late a timer can fire.
const waterPoll = 100 * time.Millisecond

// hardware is the set of peripherals the control loop drives.
type hardware struct {
	scale  logic.Scale
	sonar  logic.Rangefinder
	hatch  logic.Hatch
	pump   logic.Pump
	button gpio.ButtonReader

	closers []io.Closer
}

func (h *hardware) add(c io.Closer) {
	h.closers = append(h.closers, c)
}

// Close releases every opened peripheral in reverse order.
func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	h.closers = nil
	return errors.Join(errs...)
}

// feedRequest is a manual feed request. The control loop answers on reply.
type feedRequest struct {
	source string
	reply  chan error
}

// feedQueue carries manual feed requests from the web server to the control
// loop. One request can wait at a time.
type feedQueue chan feedRequest

func newFeedQueue() feedQueue {
	return make(feedQueue, 1)
}

func (q feedQueue) enqueue(source string) (feedRequest, bool) {
	req := feedRequest{source: source, reply: make(chan error, 1)}
	select {
	case q <- req:
		return req, true
	default:
		return req, false
	}
}

// RequestFeed queues a request and waits for the control loop to start or
// refuse it. If ctx ends first the request stays queued.
func (q feedQueue) RequestFeed(ctx context.Context, source string) error {
	req, ok := q.enqueue(source)
	if !ok {
		return web.ErrFeedPending
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notifier fans controller events out to the tracker and the broker.
type notifier struct {
	tracker   *status.Tracker
	publisher mqtt.Publisher
}

func (n notifier) Notify(ev logic.Event) error {
	logEvent(ev)
	if n.tracker != nil {
		n.tracker.Notify(ev)
	}
	if n.publisher == nil {
		return nil
	}
	if err := n.publisher.Publish(ev); err != nil {
		logger.Warn("publish failed", "event", ev.Type, "err", err)
		return err
	}
	return nil
}

func logEvent(ev logic.Event) {
	switch {
	case ev.Type == logic.EventFeedingStart:
		logger.Info("feeding started", "session", ev.SessionID, "scheduled", ev.Scheduled)
	case ev.Feeding != nil:
		f := ev.Feeding
		logger.Info("feeding finished",
			"session", ev.SessionID,
			"result", f.Terminal,
			"dispensed_g", f.DispensedGrams,
			"accuracy_pct", f.AccuracyPct,
			"band", f.Band,
			"retries", f.Retries,
			"duration", f.Duration)
	case ev.Water != nil && ev.Water.Status == logic.WaterStatusSensorError:
		logger.Warn("water sensor error", "distance_cm", ev.Water.DistanceCm)
	case ev.Water != nil:
		logger.Info("water", "status", ev.Water.Status, "state", ev.Water.State,
			"distance_cm", ev.Water.DistanceCm, "level_pct", ev.Water.LevelPct)
	}
}

// loopConfig is the control loop configuration.
type loopConfig struct {
	feed      logic.FeedConfig
	water     logic.WaterConfig
	heartbeat time.Duration
	loc       *time.Location
	schedule  []logic.ScheduleEntry
}

// loopDeps are the collaborators of the control loop. Everything except hw,
// tracker and now may be nil.
type loopDeps struct {
	hw         *hardware
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	inbox      mqtt.Subscriber
	feeds      feedQueue
	tracker    *status.Tracker
	newID      func() string
	now        func() time.Time
}

// control owns every state machine and actuator. Only the goroutine running
// run touches it.
type control struct {
	deps loopDeps
	cfg  loopConfig

	loop      *coop.Loop
	waiter    *coop.Waiter
	feeder    *logic.FeedingController
	water     *logic.WaterController
	schedule  *logic.Schedule
	button    *logic.Button
	heartbeat *logic.Heartbeat

	current  time.Time // time of the tick being processed
	pressed  bool      // press edge waiting for the feeder
	held     bool      // scheduled feeding waiting for the feeder to go idle
	hatchErr error
	pumpErr  error
}

func runLoop(deps loopDeps, cfg loopConfig, tick <-chan time.Time, sig <-chan os.Signal) error {
	return newControl(deps, cfg).run(tick, sig)
}

func newControl(deps loopDeps, cfg loopConfig) *control {
	c := &control{deps: deps, cfg: cfg}
	n := notifier{tracker: deps.tracker, publisher: deps.publisher}

	c.waiter = coop.NewWaiter(coop.SystemClock{}, 0, 0)
	c.waiter.OnYield(c.drain)

	c.feeder = logic.NewFeedingController(cfg.feed, deps.hw.scale, deps.hw.hatch, deps.tracker, n, deps.newID)
	c.water = logic.NewWaterController(cfg.water, deps.hw.sonar, deps.hw.pump, deps.tracker, n, c.waiter.Yield)
	c.feeder.SetWaterLevel(func() (float64, bool) {
		r, ok := c.water.Last()
		return r.LevelPct, ok
	})
	c.schedule = logic.NewSchedule(cfg.loc)
	c.button = logic.NewButton(buttonDebounce, buttonHold)

	c.loop = coop.NewLoop(c.waiter)
	c.loop.Add("button", 0, c.tickButton)
	c.loop.Add("feeder", 0, c.tickFeeder)
	c.loop.Add("schedule", 0, c.tickSchedule)
	c.loop.Add("water", waterPoll, c.tickWater)
	c.loop.Add("heartbeat", 0, c.tickHeartbeat)
	c.loop.Add("status", 0, c.refresh)
	return c
}

func (c *control) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	start := c.deps.now()
	c.current = start
	c.heartbeat = logic.NewHeartbeat(c.cfg.heartbeat, start)
	c.schedule.Set(c.cfg.schedule, start)

	c.deps.tracker.ShowMessage("Pet Feeder", "Starting...")
	c.refresh(start)
	c.publishSystem(start, "STARTUP", "")

	for {
		select {
		case s := <-sig:
			c.shutdown(s)
			return nil

		case <-tick:
			now := c.deps.now()
			c.current = now
			c.loop.Tick(now)
		}
	}
}

func (c *control) tickButton(now time.Time) {
	if c.deps.hw.button == nil {
		return
	}
	pressed, err := c.deps.hw.button.Pressed()
	if err != nil {
		logger.Debug("button read error", "err", err)
		return
	}
	for _, ev := range c.button.Process(logic.Input{Pressed: pressed, Time: now}) {
		switch ev.Edge {
		case logic.EdgePressed:
			if c.feeder.Phase() == logic.PhaseBowlConfirm {
				c.pressed = true
				continue
			}
			c.startFeeding(now, false, "button")
		case logic.EdgeHeld:
			logger.Debug("button held", "presses", c.button.Presses())
		}
	}
}

func (c *control) tickFeeder(now time.Time) {
	c.feeder.Tick(logic.FeedInput{Now: now, Pressed: c.pressed})
	c.pressed = false
}

// tickSchedule starts due feedings. One that falls due during a session is
// held and started as soon as the feeder is idle.
func (c *control) tickSchedule(now time.Time) {
	if c.schedule.Due(now) {
		c.held = true
		if c.feeder.Active() {
			logger.Info("scheduled feeding held", "phase", c.feeder.Phase())
		}
	}
	if !c.held || c.feeder.Active() {
		return
	}
	c.held = false
	c.startFeeding(now, true, "schedule")
}

func (c *control) tickWater(now time.Time) {
	// a burst of pings would stall mass polling
	if c.feeder.Dispensing() && c.water.CheckDue(now) {
		return
	}
	c.water.Tick(now)
}

func (c *control) tickHeartbeat(now time.Time) {
	hb := c.heartbeat.Check(now, c.feeder.Feedings(), c.water.Refills())
	if hb == nil {
		return
	}
	logger.Info("heartbeat", "uptime", hb.Uptime.Truncate(time.Second), "feedings", hb.Feedings, "refills", hb.Refills)
	if net := readNetworkInfo(); net != nil {
		c.deps.tracker.SetNetwork(net)
	}
	c.refresh(now)
	c.publishSystem(hb.Timestamp, "HEARTBEAT", "")
}

// refresh copies controller state into the tracker for HTTP readers.
func (c *control) refresh(now time.Time) {
	t := c.deps.tracker
	if s, ok := c.feeder.Session(); ok {
		t.UpdateFeeder(s.Phase, &s, c.feeder.Feedings())
	} else {
		t.UpdateFeeder(logic.PhaseIdle, nil, c.feeder.Feedings())
	}
	t.UpdateWater(c.water.State(), c.water.EnteredAt(), c.water.Refills(), c.water.SensorErrors())
	next, ok := c.schedule.Next(now)
	t.SetSchedule(c.schedule.Entries(), next, ok)
	if c.deps.mqttStatus != nil {
		t.SetMQTTConnected(c.deps.mqttStatus.IsConnected())
	}

	if err := c.feeder.HatchError(); err != nil && err != c.hatchErr {
		logger.Error("hatch fault", "err", err)
		c.hatchErr = err
	}
	if err := c.water.PumpError(); err != nil && err != c.pumpErr {
		logger.Error("pump fault", "err", err)
		c.pumpErr = err
	}
}

func (c *control) startFeeding(now time.Time, scheduled bool, source string) error {
	if err := c.feeder.Start(now, scheduled); err != nil {
		logger.Warn("feed request ignored", "source", source, "err", err)
		return err
	}
	logger.Debug("feed requested", "source", source)
	return nil
}

// drain hands queued network input to the control goroutine. It runs on
// every yield.
func (c *control) drain() {
	var inbox <-chan mqtt.Message
	if c.deps.inbox != nil {
		inbox = c.deps.inbox.Messages()
	}
	for {
		select {
		case m := <-inbox:
			c.handleMessage(m)
		case req := <-c.deps.feeds:
			req.reply <- c.startFeeding(c.current, false, req.source)
		default:
			return
		}
	}
}

func (c *control) handleMessage(m mqtt.Message) {
	switch m.Topic {
	case mqtt.TopicSchedules:
		entries, err := mqtt.ParseSchedules(m.Payload)
		if err != nil {
			logger.Warn("schedule rejected", "err", err)
			return
		}
		c.schedule.Set(entries, c.current)
		next, ok := c.schedule.Next(c.current)
		logger.Info("schedule updated", "entries", len(entries), "active", c.schedule.HasActive(), "next", next, "has_next", ok)

	case mqtt.TopicCommands:
		cmd, err := mqtt.ParseCommand(m.Payload)
		if err != nil {
			logger.Warn("command rejected", "err", err)
			return
		}
		if cmd.Command == mqtt.CommandFeed {
			c.startFeeding(c.current, false, "mqtt")
		}

	default:
		logger.Debug("ignoring message", "topic", m.Topic)
	}
}

// shutdown forces the actuators safe and announces the exit.
func (c *control) shutdown(s os.Signal) {
	reason := "UNKNOWN"
	switch s {
	case syscall.SIGINT:
		reason = "SIGINT"
	case syscall.SIGTERM:
		reason = "SIGTERM"
	}
	logger.Info("shutting down", "signal", reason, "phase", c.feeder.Phase(), "water", c.water.State())

	if err := c.deps.hw.hatch.SetAngle(c.cfg.feed.CloseAngle); err != nil {
		logger.Error("close hatch", "err", err)
	}
	if err := c.deps.hw.pump.SetPump(false); err != nil {
		logger.Error("stop pump", "err", err)
	}
	c.deps.tracker.ShowMessage("Shutting down", reason)

	now := c.deps.now()
	c.refresh(now)
	c.publishSystem(now, "SHUTDOWN", reason)
}

func (c *control) publishSystem(now time.Time, event, reason string) {
	if c.deps.publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{
		Timestamp:  now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(c.deps.tracker.Snapshot(), event, reason),
	}
	if err := c.deps.publisher.PublishSystem(ev); err != nil {
		logger.Warn("system event publish failed", "event", event, "err", err)
		return
	}
	logger.Debug("published system event", "event", event)
}
