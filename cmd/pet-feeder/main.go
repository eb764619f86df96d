// Command pet-feeder meters food into a bowl by weight, keeps the water
// reservoir topped up and publishes what it does to MQTT.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/sweeney/pet-feeder/internal/config"
	"github.com/sweeney/pet-feeder/internal/coop"
	"github.com/sweeney/pet-feeder/internal/filter"
	"github.com/sweeney/pet-feeder/internal/gpio"
	"github.com/sweeney/pet-feeder/internal/logger"
	"github.com/sweeney/pet-feeder/internal/logic"
	"github.com/sweeney/pet-feeder/internal/mqtt"
	"github.com/sweeney/pet-feeder/internal/servo"
	"github.com/sweeney/pet-feeder/internal/status"
	"github.com/sweeney/pet-feeder/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var CLI struct {
	Config config.Config `embed:""`

	ConfigFile kong.ConfigFlag  `name:"config" help:"Load settings from a JSON file."`
	Version    kong.VersionFlag `help:"Print version and exit."`

	Run   RunCmd   `cmd:"" help:"Run the feeder." default:"1"`
	Feed  FeedCmd  `cmd:"" help:"Run one feeding cycle now and exit."`
	State StateCmd `cmd:"" help:"Print current sensor readings and exit."`
	Tare  TareCmd  `cmd:"" help:"Zero the scale with an empty bowl and print the offset."`
}

// appContext is bound into every command's Run.
type appContext struct {
	cfg *config.Config
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("pet-feeder"),
		kong.Description("Weight-metered pet feeder with automatic water refill"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "/etc/pet-feeder/config.json", "~/.config/pet-feeder/config.json"),
		config.Vars(),
		kong.Vars{"version": version},
	)

	cfg := &CLI.Config
	if err := logger.Init(logger.Config{Debug: cfg.Log.Debug, Dir: cfg.Log.Dir, Quiet: cfg.Log.Quiet}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		logger.Close()
		os.Exit(2)
	}

	if err := ctx.Run(&appContext{cfg: cfg}); err != nil {
		logger.Error("fatal", "err", err)
		logger.Close()
		os.Exit(1)
	}
}

// RunCmd is the daemon.
type RunCmd struct{}

func (r *RunCmd) Run(app *appContext) error {
	cfg := app.cfg
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	entries, err := cfg.Entries()
	if err != nil {
		return err
	}

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	ws := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      cfg.Tick.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		TargetGrams: cfg.Feed.Target,
		TimeZone:    loc.String(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP,
		WSBroker:    ws,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	deps := loopDeps{
		hw:      hw,
		feeds:   newFeedQueue(),
		tracker: tracker,
		newID:   uuid.NewString,
		now:     time.Now,
	}

	if cfg.MQTT.Broker != "" {
		client, err := mqtt.NewRealClient(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.Buffer,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()
		deps.publisher, deps.mqttStatus, deps.inbox = client, client, client
	} else {
		logger.Warn("mqtt disabled")
	}

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, deps.feeds)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.Info("http status server listening", "addr", cfg.HTTP)
	}

	logger.Info("started",
		"version", version,
		"tick", cfg.Tick,
		"target_g", cfg.Feed.Target,
		"schedule", cfg.Schedule,
		"tz", loc,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(deps, loopConfig{
		feed:      cfg.Feed.Logic(),
		water:     cfg.Water.Logic(),
		heartbeat: cfg.Heartbeat,
		loc:       loc,
		schedule:  entries,
	}, ticker.C, sigCh)
}

// FeedCmd runs a single blocking feeding cycle.
type FeedCmd struct{}

func (f *FeedCmd) Run(app *appContext) error {
	cfg := app.cfg
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	tracker := status.NewTracker(time.Now(), status.Config{TargetGrams: cfg.Feed.Target})
	waiter := coop.NewWaiter(coop.SystemClock{}, cfg.Tick, 0)
	feeder := logic.NewFeedingController(cfg.Feed.Logic(), hw.scale, hw.hatch, tracker, notifier{tracker: tracker}, uuid.NewString)

	button := logic.NewButton(buttonDebounce, 0)
	pressed := func() bool {
		p, err := hw.button.Pressed()
		if err != nil {
			return false
		}
		for _, ev := range button.Process(logic.Input{Pressed: p, Time: waiter.Now()}) {
			if ev.Edge == logic.EdgePressed {
				return true
			}
		}
		return false
	}

	out, err := feeder.Run(false, waiter, pressed)
	if err != nil {
		return err
	}
	// leave the result on the display long enough to read
	waiter.WaitSince(0, tracker.Snapshot().Display.UpdatedAt)

	fmt.Printf("%s: %.1fg of %.1fg (%.1f%%, %s) in %v, %d retries\n",
		out.Terminal, out.DispensedGrams, out.TargetGrams, out.AccuracyPct, out.Band,
		out.Duration.Truncate(100*time.Millisecond), out.Retries)
	return nil
}

// StateCmd prints one reading of every sensor.
type StateCmd struct{}

func (s *StateCmd) Run(app *appContext) error {
	cfg := app.cfg
	hw := &hardware{}
	defer hw.Close()

	scale, err := openScale(hw, cfg, false)
	if err != nil {
		return err
	}
	sonar, err := gpio.NewSonar(cfg.Pins.SonarTrig, cfg.Pins.SonarEcho)
	if err != nil {
		return fmt.Errorf("init sonar: %w", err)
	}
	hw.add(sonar)
	button, err := gpio.NewButton(cfg.Pins.Button)
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	hw.add(button)

	if mass, err := scale.ReadMass(cfg.Feed.Samples); err != nil {
		fmt.Printf("Scale: error (%v)\n", err)
	} else {
		fmt.Printf("Scale: %.1fg\n", mass)
	}

	water := cfg.Water.Logic()
	if r, err := filter.MedianOf(water.PingSamples, sonar.Distance, nil); err != nil {
		fmt.Printf("Water: error (%v)\n", err)
	} else {
		height, pct := water.WaterLevel(r.Value)
		fmt.Printf("Water: %.1fcm from sensor, %.1fcm high (%.0f%%)\n", r.Value, height, pct)
	}

	pressed, err := button.Pressed()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	fmt.Printf("Button: %s\n", pressedString(pressed))
	return nil
}

// TareCmd zeroes the scale.
type TareCmd struct{}

func (t *TareCmd) Run(app *appContext) error {
	hw := &hardware{}
	defer hw.Close()

	scale, err := openScale(hw, app.cfg, true)
	if err != nil {
		return err
	}
	fmt.Printf("Offset: %.0f counts\n", scale.Offset())
	return nil
}

// openScale opens the load cell and applies the calibration. With tare set a
// failed tare is an error.
func openScale(hw *hardware, cfg *config.Config, tare bool) (*gpio.HX711, error) {
	scale, err := gpio.NewHX711(cfg.Pins.ScaleData, cfg.Pins.ScaleClock)
	if err != nil {
		return nil, fmt.Errorf("init scale: %w", err)
	}
	hw.add(scale)
	scale.SetScale(cfg.Scale.Calibration)
	if !tare {
		return scale, nil
	}
	if err := scale.Tare(cfg.Scale.TareSamples); err != nil {
		return nil, fmt.Errorf("tare scale: %w", err)
	}
	logger.Info("scale tared", "offset", scale.Offset())
	return scale, nil
}

// openHardware opens every peripheral. On error whatever was opened is
// closed again.
func openHardware(cfg *config.Config) (*hardware, error) {
	hw := &hardware{}
	if err := hw.open(cfg); err != nil {
		hw.Close()
		return nil, err
	}
	return hw, nil
}

func (hw *hardware) open(cfg *config.Config) error {
	scale, err := openScale(hw, cfg, false)
	if err != nil {
		return err
	}
	if cfg.Scale.Tare {
		// the feeder copes with an unready scale, so a failed tare is not fatal
		if terr := scale.Tare(cfg.Scale.TareSamples); terr != nil {
			logger.Warn("tare failed, using zero offset", "err", terr)
		} else {
			logger.Info("scale tared", "offset", scale.Offset())
		}
	}
	hw.scale = scale

	sonar, err := gpio.NewSonar(cfg.Pins.SonarTrig, cfg.Pins.SonarEcho)
	if err != nil {
		return fmt.Errorf("init sonar: %w", err)
	}
	hw.add(sonar)
	hw.sonar = sonar

	relay, err := gpio.NewRelay(cfg.Pins.Relay)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	hw.add(relay)
	hw.pump = relay

	button, err := gpio.NewButton(cfg.Pins.Button)
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	hw.add(button)
	hw.button = button

	hatch, err := servo.Open(cfg.Pins.Servo)
	if err != nil {
		return fmt.Errorf("init hatch: %w", err)
	}
	hw.add(hatch)
	hw.hatch = hatch
	if err := hatch.SetAngle(cfg.Feed.CloseAngle); err != nil {
		return fmt.Errorf("close hatch: %w", err)
	}

	return nil
}

func pressedString(p bool) string {
	if p {
		return "PRESSED"
	}
	return "RELEASED"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --mqtt-ws-broker value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" or an
// empty broker disables it.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	if broker == "" {
		return ""
	}
	u, err := url.Parse(broker)
	if err != nil {
		logger.Warn("ws-broker: cannot parse broker", "broker", broker, "err", err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
