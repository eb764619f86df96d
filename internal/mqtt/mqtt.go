// Package mqtt publishes feeder events to MQTT and receives schedule sets and
// commands, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/pet-feeder/internal/logic"
)

// Topics. Events and system messages are published; schedules and commands
// are subscribed.
const (
	TopicEvents    = "pets/feeder/events"
	TopicSystem    = "pets/feeder/system"
	TopicSchedules = "pets/feeder/schedules"
	TopicCommands  = "pets/feeder/commands"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a feeder event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Subscriber delivers inbound messages. The channel is drained by the
// control loop; the network side never blocks on it.
type Subscriber interface {
	Messages() <-chan Message
}

// Message is one inbound MQTT message.
type Message struct {
	Topic   string
	Payload []byte
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Feeder FeederPayload `json:"feeder"`
}

// FeederPayload contains the event details.
type FeederPayload struct {
	Timestamp string          `json:"timestamp"`
	Event     string          `json:"event"`
	SessionID string          `json:"session_id,omitempty"`
	Scheduled *bool           `json:"scheduled,omitempty"`
	Feeding   *FeedingPayload `json:"feeding,omitempty"`
	Water     *WaterPayload   `json:"water,omitempty"`
}

// FeedingPayload is a finished feeding session.
type FeedingPayload struct {
	Result      string  `json:"result"`
	InitialG    float64 `json:"initial_g"`
	TargetG     float64 `json:"target_g"`
	DispensedG  float64 `json:"dispensed_g"`
	AccuracyPct float64 `json:"accuracy_pct"`
	Band        string  `json:"band"`
	Retries     int     `json:"retries"`
	DurationMs  int64   `json:"duration_ms"`

	FoodLevelPct  float64  `json:"food_level_pct"`
	WaterLevelPct *float64 `json:"water_level_pct,omitempty"`
}

// WaterPayload is a water level reading or refill transition.
type WaterPayload struct {
	Status     string  `json:"status"`
	State      string  `json:"state"`
	DistanceCm float64 `json:"distance_cm,omitempty"`
	HeightCm   float64 `json:"height_cm,omitempty"`
	LevelPct   float64 `json:"level_pct"`
}

// round1 keeps one decimal place; the scale is not more precise than that.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// FormatPayload creates the JSON payload for a feeder event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := FeederPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		SessionID: event.SessionID,
	}
	if event.Type != logic.EventWaterStatus {
		scheduled := event.Scheduled
		p.Scheduled = &scheduled
	}
	if f := event.Feeding; f != nil {
		p.Feeding = &FeedingPayload{
			Result:      string(f.Terminal),
			InitialG:    round1(f.InitialGrams),
			TargetG:     round1(f.TargetGrams),
			DispensedG:  round1(f.DispensedGrams),
			AccuracyPct: round1(f.AccuracyPct),
			Band:        string(f.Band),
			Retries:     f.Retries,
			DurationMs:  f.Duration.Milliseconds(),

			FoodLevelPct: round1(f.FoodLevelPct),
		}
		if f.WaterLevelPct != nil {
			w := round1(*f.WaterLevelPct)
			p.Feeding.WaterLevelPct = &w
		}
	}
	if w := event.Water; w != nil {
		p.Water = &WaterPayload{
			Status:     string(w.Status),
			State:      string(w.State),
			DistanceCm: round1(w.DistanceCm),
			HeightCm:   round1(w.HeightCm),
			LevelPct:   round1(w.LevelPct),
		}
	}
	return json.Marshal(Payload{Feeder: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ScheduleJSON is one entry of a schedule set.
type ScheduleJSON struct {
	Time    string `json:"time"`
	Enabled bool   `json:"enabled"`
}

// ParseSchedules decodes a whole schedule set. Any bad entry rejects the
// set so a half-applied schedule never reaches the feeder.
func ParseSchedules(data []byte) ([]logic.ScheduleEntry, error) {
	var raw []ScheduleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	entries := make([]logic.ScheduleEntry, 0, len(raw))
	for i, s := range raw {
		m, err := logic.ParseClock(s.Time)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
		entries = append(entries, logic.ScheduleEntry{Minute: m, Enabled: s.Enabled})
	}
	return entries, nil
}

// FormatSchedules encodes a schedule set in the form ParseSchedules reads.
func FormatSchedules(entries []logic.ScheduleEntry) ([]byte, error) {
	out := make([]ScheduleJSON, len(entries))
	for i, e := range entries {
		out[i] = ScheduleJSON{Time: logic.FormatClock(e.Minute), Enabled: e.Enabled}
	}
	return json.Marshal(out)
}

// Commands accepted on TopicCommands.
const (
	CommandFeed = "feed"
)

// Command is an inbound command message.
type Command struct {
	Command string `json:"command"`
}

// ParseCommand decodes a command and rejects unknown ones.
func ParseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch c.Command {
	case CommandFeed:
		return c, nil
	}
	return Command{}, fmt.Errorf("unknown command %q", c.Command)
}
