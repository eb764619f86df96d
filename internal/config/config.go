// Package config is the daemon's configuration surface. The structs carry
// kong tags so the same definitions serve as command-line flags, JSON config
// file keys and defaults.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alecthomas/kong"

	"github.com/sweeney/pet-feeder/internal/gpio"
	"github.com/sweeney/pet-feeder/internal/logic"
	"github.com/sweeney/pet-feeder/internal/mqtt"
	"github.com/sweeney/pet-feeder/internal/servo"
)

// Feed configures the feeding dispense controller.
type Feed struct {
	Target         float64       `help:"Target mass per feeding in grams." default:"65"`
	Threshold      float64       `help:"Bowl mass in grams that asks for confirmation before feeding." default:"50"`
	Hopper         float64       `help:"Food the hopper holds when full, in grams." default:"200"`
	PreClose       float64       `help:"Fraction of the target at which the hatch closes early (>= 1 disables)." default:"0.9"`
	Complete       float64       `help:"Fraction of the target counted as complete after settling." default:"0.95"`
	Excess         float64       `help:"Fraction of the target that triggers an emergency stop." default:"1.25"`
	Timeout        time.Duration `help:"Maximum dispensing time." default:"30s"`
	MaxRetry       int           `help:"Hatch reopen attempts after an underfeed." default:"2"`
	ReadInterval   time.Duration `help:"Scale polling interval while dispensing." default:"100ms"`
	ScaleTimeout   time.Duration `help:"How long to wait for the scale to become ready." default:"3s"`
	ScaleRetries   int           `help:"Consecutive unready polls tolerated while dispensing." default:"5"`
	ConfirmTimeout time.Duration `help:"How long to wait for a button press when the bowl is full." default:"20s"`
	Settle         time.Duration `help:"Settle time after a pre-close." default:"2s"`
	SettleFinal    time.Duration `help:"Settle time before the final measurement." default:"2s"`
	Samples        int           `help:"Scale samples per settled measurement." default:"5"`
	Confirmations  int           `help:"Consecutive polls at target that confirm a direct reach." default:"2"`
	OpenAngle      int           `help:"Hatch servo angle when open." default:"60"`
	CloseAngle     int           `help:"Hatch servo angle when closed." default:"180"`
}

// Logic converts the flags into the controller configuration.
func (f Feed) Logic() logic.FeedConfig {
	c := logic.DefaultFeedConfig()
	c.TargetGrams = f.Target
	c.ThresholdGrams = f.Threshold
	c.HopperGrams = f.Hopper
	c.PreCloseFactor = f.PreClose
	c.CompleteFactor = f.Complete
	c.ExcessFactor = f.Excess
	c.Timeout = f.Timeout
	c.MaxRetry = f.MaxRetry
	c.ReadInterval = f.ReadInterval
	c.ScaleTimeout = f.ScaleTimeout
	c.ScaleRetries = f.ScaleRetries
	c.ConfirmTimeout = f.ConfirmTimeout
	c.SettleTime = f.Settle
	c.SettleFinal = f.SettleFinal
	c.BowlSamples = f.Samples
	c.SettleSamples = f.Samples
	c.FinalSamples = f.Samples
	c.ReachConfirmations = f.Confirmations
	c.OpenAngle = f.OpenAngle
	c.CloseAngle = f.CloseAngle
	return c
}

// Validate checks factor ordering and timings.
func (f Feed) Validate() error {
	var errs []error
	if f.Target <= 0 {
		errs = append(errs, fmt.Errorf("feed target must be positive, got %v", f.Target))
	}
	if f.Threshold < 0 {
		errs = append(errs, fmt.Errorf("feed threshold must not be negative, got %v", f.Threshold))
	}
	if f.Hopper < f.Target {
		errs = append(errs, fmt.Errorf("feed hopper %vg holds less than one target of %vg", f.Hopper, f.Target))
	}
	if f.PreClose <= 0 {
		errs = append(errs, fmt.Errorf("feed pre-close factor must be positive, got %v", f.PreClose))
	}
	if f.Complete <= 0 || f.Complete > 1 {
		errs = append(errs, fmt.Errorf("feed complete factor must be in (0, 1], got %v", f.Complete))
	}
	if f.Excess <= 1 {
		errs = append(errs, fmt.Errorf("feed excess factor must exceed 1, got %v", f.Excess))
	}
	if f.Timeout <= 0 || f.ReadInterval <= 0 || f.ScaleTimeout <= 0 || f.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("feed timeouts and read interval must be positive"))
	}
	if f.Settle < 0 || f.SettleFinal < 0 {
		errs = append(errs, errors.New("feed settle times must not be negative"))
	}
	if f.MaxRetry < 0 || f.ScaleRetries < 0 {
		errs = append(errs, errors.New("feed retry counts must not be negative"))
	}
	if f.Samples < 1 || f.Confirmations < 1 {
		errs = append(errs, errors.New("feed samples and confirmations must be at least 1"))
	}
	if !validAngle(f.OpenAngle) || !validAngle(f.CloseAngle) {
		errs = append(errs, fmt.Errorf("hatch angles must be in [0, %d]", servo.MaxAngle))
	}
	if f.OpenAngle == f.CloseAngle {
		errs = append(errs, fmt.Errorf("hatch open and close angles are both %d", f.OpenAngle))
	}
	return errors.Join(errs...)
}

func validAngle(a int) bool {
	return a >= 0 && a <= servo.MaxAngle
}

// Water configures the water refill state machine. Distances are measured
// from the sensor down to the water surface.
type Water struct {
	Critical      float64       `help:"Water height in cm at or below which a refill starts." default:"2"`
	Empty         float64       `help:"Sensor distance in cm to an empty reservoir." default:"19"`
	Full          float64       `help:"Sensor distance in cm to a full reservoir." default:"16"`
	MaxDistance   float64       `help:"Readings beyond this distance in cm are sensor errors." default:"400"`
	Samples       int           `help:"Distance samples per check (odd, median filtered)." default:"5"`
	CheckInterval time.Duration `help:"Time between level checks." default:"10s"`
	Refill        time.Duration `help:"Pump run time per refill." default:"10s"`
	Cooldown      time.Duration `help:"Minimum time between refills." default:"5m"`
}

// Logic converts the flags into the controller configuration.
func (w Water) Logic() logic.WaterConfig {
	c := logic.DefaultWaterConfig()
	c.CriticalHeight = w.Critical
	c.EmptyDistance = w.Empty
	c.FullDistance = w.Full
	c.MaxDistance = w.MaxDistance
	c.PingSamples = w.Samples
	c.CheckInterval = w.CheckInterval
	c.RefillDuration = w.Refill
	c.CooldownPeriod = w.Cooldown
	return c
}

// Validate checks the reservoir geometry.
func (w Water) Validate() error {
	var errs []error
	if w.Full <= 0 || w.Empty <= w.Full {
		errs = append(errs, fmt.Errorf("water geometry needs 0 < full (%v) < empty (%v)", w.Full, w.Empty))
	}
	if w.Critical <= 0 || w.Critical > w.Empty-w.Full {
		errs = append(errs, fmt.Errorf("water critical height %v outside (0, %v]", w.Critical, w.Empty-w.Full))
	}
	if w.MaxDistance <= w.Empty {
		errs = append(errs, fmt.Errorf("water max distance %v must exceed empty distance %v", w.MaxDistance, w.Empty))
	}
	if w.Samples < 1 || w.Samples%2 == 0 {
		errs = append(errs, fmt.Errorf("water samples must be odd and positive, got %d", w.Samples))
	}
	if w.CheckInterval <= 0 || w.Refill <= 0 || w.Cooldown < 0 {
		errs = append(errs, errors.New("water intervals must be positive"))
	}
	return errors.Join(errs...)
}

// Pins holds BCM pin numbers.
type Pins struct {
	Relay      int `help:"Pump relay pin." default:"${pin_relay}"`
	Button     int `help:"Feed button pin." default:"${pin_button}"`
	ScaleData  int `help:"HX711 data pin." default:"${pin_scale_data}"`
	ScaleClock int `help:"HX711 clock pin." default:"${pin_scale_clock}"`
	SonarTrig  int `help:"HC-SR04 trigger pin." default:"${pin_sonar_trig}"`
	SonarEcho  int `help:"HC-SR04 echo pin." default:"${pin_sonar_echo}"`
	Servo      int `help:"Hatch servo pin (hardware PWM)." default:"${pin_servo}"`
}

// Validate rejects pins assigned twice.
func (p Pins) Validate() error {
	seen := map[int]string{}
	for _, pin := range []struct {
		name string
		n    int
	}{
		{"relay", p.Relay}, {"button", p.Button}, {"scale-data", p.ScaleData}, {"scale-clock", p.ScaleClock},
		{"sonar-trig", p.SonarTrig}, {"sonar-echo", p.SonarEcho}, {"servo", p.Servo},
	} {
		if pin.n < 0 {
			return fmt.Errorf("pin %s: invalid number %d", pin.name, pin.n)
		}
		if other, ok := seen[pin.n]; ok {
			return fmt.Errorf("pin %d used for both %s and %s", pin.n, other, pin.name)
		}
		seen[pin.n] = pin.name
	}
	return nil
}

// Scale configures the load cell.
type Scale struct {
	Calibration float64 `help:"Load cell counts per gram." default:"${calibration}"`
	TareSamples int     `help:"Samples averaged when taring at startup." default:"10"`
	Tare        bool    `help:"Tare the scale at startup (the bowl must be empty)." default:"true" negatable:""`
}

// Validate checks the calibration factor.
func (s Scale) Validate() error {
	if s.Calibration == 0 {
		return errors.New("scale calibration must not be zero")
	}
	if s.TareSamples < 1 {
		return fmt.Errorf("scale tare samples must be at least 1, got %d", s.TareSamples)
	}
	return nil
}

// MQTT configures the broker connection.
type MQTT struct {
	Broker   string `help:"MQTT broker address (empty disables MQTT)." default:"tcp://192.168.1.200:1883"`
	ClientID string `help:"MQTT client ID." default:"${mqtt_client_id}"`
	Buffer int `help:"Publishes kept while the broker is unreachable." default:"${mqtt_buffer}"`
	WSBroker string `help:"MQTT websocket URL for the live status page (\"=broker\" derives from --mqtt-broker, \"off\" disables)." default:"=broker"`
}

// Log configures the logger.
type Log struct {
	Dir   string `help:"Directory for the rotating log file (empty logs to stderr only)." default:""`
	Debug bool   `help:"Enable debug logging."`
	Quiet bool   `help:"Do not log to stderr when a log directory is set."`
}

// Config is the complete daemon configuration.
type Config struct {
	Tick      time.Duration `help:"Control loop tick." default:"10ms"`
	Heartbeat time.Duration `help:"Heartbeat interval (0 to disable)." default:"15m"`
	TimeZone  string        `help:"IANA time zone for feeding times." default:"Local"`
	Schedule  []string      `help:"Feeding times (HH:MM) used until a schedule arrives over MQTT." default:"08:00,18:00"`
	HTTP      string        `help:"HTTP status address (empty to disable)." default:":80"`

	Feed  Feed  `embed:"" prefix:"feed-" group:"Feeding"`
	Water Water `embed:"" prefix:"water-" group:"Water"`
	Pins  Pins  `embed:"" prefix:"pin-" group:"GPIO"`
	Scale Scale `embed:"" prefix:"scale-" group:"Scale"`
	MQTT  MQTT  `embed:"" prefix:"mqtt-" group:"MQTT"`
	Log   Log   `embed:"" prefix:"log-" group:"Logging"`
}

// Vars supplies the defaults that come from driver constants.
func Vars() kong.Vars {
	return kong.Vars{
		"pin_relay":       strconv.Itoa(gpio.PinRelay),
		"pin_button":      strconv.Itoa(gpio.PinButton),
		"pin_scale_data":  strconv.Itoa(gpio.PinScaleData),
		"pin_scale_clock": strconv.Itoa(gpio.PinScaleClock),
		"pin_sonar_trig":  strconv.Itoa(gpio.PinSonarTrig),
		"pin_sonar_echo":  strconv.Itoa(gpio.PinSonarEcho),
		"pin_servo":       strconv.Itoa(servo.DefaultPin),
		"calibration":     strconv.FormatFloat(gpio.DefaultCalibration, 'f', -1, 64),
		"mqtt_client_id":  mqtt.DefaultClientID,
		"mqtt_buffer":     strconv.Itoa(mqtt.DefaultBufferSize),
	}
}

// Validate checks every group and the settings that span groups.
func (c *Config) Validate() error {
	errs := []error{c.Feed.Validate(), c.Water.Validate(), c.Pins.Validate(), c.Scale.Validate()}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %v", c.Tick))
	} else if c.Tick > c.Feed.ReadInterval {
		errs = append(errs, fmt.Errorf("tick %v is longer than the feed read interval %v", c.Tick, c.Feed.ReadInterval))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Entries(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Entries parses the default schedule. One bad time rejects the whole set.
func (c *Config) Entries() ([]logic.ScheduleEntry, error) {
	entries := make([]logic.ScheduleEntry, 0, len(c.Schedule))
	for _, s := range c.Schedule {
		m, err := logic.ParseClock(s)
		if err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
		entries = append(entries, logic.ScheduleEntry{Minute: m, Enabled: true})
	}
	return entries, nil
}
