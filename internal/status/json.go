package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/pet-feeder/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Display       DisplayJSON  `json:"display"`
	Feeder        FeederJSON   `json:"feeder"`
	Water         WaterJSON    `json:"water"`
	Schedule      ScheduleJSON `json:"schedule"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// DisplayJSON mirrors the character display.
type DisplayJSON struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// FeederJSON reports the feeding controller.
type FeederJSON struct {
	Phase       string       `json:"phase"`
	SessionID   string       `json:"session_id,omitempty"`
	Scheduled   bool         `json:"scheduled,omitempty"`
	DispensedG  float64      `json:"dispensed_g"`
	TargetG     float64      `json:"target_g"`
	Retries     int          `json:"retries"`
	Feedings    int          `json:"feedings"`
	LastFeeding *OutcomeJSON `json:"last_feeding,omitempty"`
}

// OutcomeJSON is the last finished feeding.
type OutcomeJSON struct {
	At          string  `json:"at"`
	Result      string  `json:"result"`
	DispensedG  float64 `json:"dispensed_g"`
	AccuracyPct float64 `json:"accuracy_pct"`
	Band        string  `json:"band"`
}

// WaterJSON reports the water controller.
type WaterJSON struct {
	State        string   `json:"state"`
	Since        string   `json:"since,omitempty"`
	Status       string   `json:"status,omitempty"`
	DistanceCm   *float64 `json:"distance_cm,omitempty"`
	LevelPct     *float64 `json:"level_pct,omitempty"`
	Refills      int      `json:"refills"`
	SensorErrors int      `json:"sensor_errors"`
}

// ScheduleJSON reports the feeding schedule.
type ScheduleJSON struct {
	Times       []string `json:"times"`
	NextFeeding string   `json:"next_feeding,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64   `json:"tick_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	TargetG     float64 `json:"target_g"`
	TimeZone    string  `json:"time_zone"`
	Broker      string  `json:"broker"`
	HTTPPort    string  `json:"http_port"`
	WSBroker    string  `json:"ws_broker,omitempty"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Feeder.Phase)
	if phase == "" {
		phase = string(logic.PhaseIdle)
	}
	state := string(snap.Water.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Display:       DisplayJSON{Line1: snap.Display.Line1, Line2: snap.Display.Line2},
		Feeder: FeederJSON{
			Phase:      phase,
			SessionID:  snap.Feeder.SessionID,
			Scheduled:  snap.Feeder.Scheduled,
			DispensedG: round1(snap.Feeder.Dispensed),
			TargetG:    round1(snap.Feeder.Target),
			Retries:    snap.Feeder.Retries,
			Feedings:   snap.Feeder.Feedings,
		},
		Water: WaterJSON{
			State:        state,
			Since:        rfc3339(snap.Water.EnteredAt),
			Refills:      snap.Water.Refills,
			SensorErrors: snap.Water.SensorErrors,
		},
		Schedule: ScheduleJSON{Times: []string{}},
		MQTT:     MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			TargetG:     snap.Config.TargetGrams,
			TimeZone:    snap.Config.TimeZone,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			WSBroker:    snap.Config.WSBroker,
		},
	}

	if out := snap.Feeder.Last; out != nil {
		inner.Feeder.LastFeeding = &OutcomeJSON{
			At:          rfc3339(snap.Feeder.LastAt),
			Result:      string(out.Terminal),
			DispensedG:  round1(out.DispensedGrams),
			AccuracyPct: round1(out.AccuracyPct),
			Band:        string(out.Band),
		}
	}

	if r := snap.Water.Last; r != nil {
		inner.Water.Status = string(r.Status)
		if r.Status != logic.WaterStatusSensorError {
			d, pct := round1(r.DistanceCm), round1(r.LevelPct)
			inner.Water.DistanceCm = &d
			inner.Water.LevelPct = &pct
		}
	}

	for _, e := range snap.Schedule.Entries {
		if e.Enabled {
			inner.Schedule.Times = append(inner.Schedule.Times, logic.FormatClock(e.Minute))
		}
	}
	if snap.Schedule.HasNext {
		inner.Schedule.NextFeeding = rfc3339(snap.Schedule.Next)
	}

	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
