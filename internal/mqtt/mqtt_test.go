package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/pet-feeder/internal/logic"
)

var ts = time.Date(2026, 2, 10, 8, 0, 5, 0, time.UTC)

func TestTopics(t *testing.T) {
	for _, topic := range []string{TopicEvents, TopicSystem, TopicSchedules, TopicCommands} {
		if !strings.HasPrefix(topic, "pets/feeder/") {
			t.Errorf("topic %q outside pets/feeder/", topic)
		}
	}
}

func TestFormatPayloadFeedingComplete(t *testing.T) {
	water := 83.333
	event := logic.Event{
		Timestamp: ts,
		Type:      logic.EventFeedingComplete,
		SessionID: "abc",
		Scheduled: true,
		Feeding: &logic.FeedingOutcome{
			Terminal:       logic.TerminalComplete,
			InitialGrams:   3.04,
			TargetGrams:    65,
			DispensedGrams: 62.04,
			AccuracyPct:    95.446,
			Band:           logic.BandPerfect,
			Retries:        1,
			Duration:       12500 * time.Millisecond,
			FoodLevelPct:   68.98,
			WaterLevelPct:  &water,
		},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"feeder":{"timestamp":"2026-02-10T08:00:05Z","event":"feeding_complete","session_id":"abc","scheduled":true,` +
		`"feeding":{"result":"COMPLETE","initial_g":3,"target_g":65,"dispensed_g":62,"accuracy_pct":95.4,"band":"perfect","retries":1,"duration_ms":12500,` +
		`"food_level_pct":69,"water_level_pct":83.3}}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadFeedingWithoutWaterLevel(t *testing.T) {
	payload, err := FormatPayload(logic.Event{
		Timestamp: ts,
		Type:      logic.EventFeedingComplete,
		Feeding:   &logic.FeedingOutcome{Terminal: logic.TerminalCancelled, TargetGrams: 65, FoodLevelPct: 100},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if p.Feeder.Feeding.FoodLevelPct != 100 {
		t.Errorf("food level: got %v, want 100", p.Feeder.Feeding.FoodLevelPct)
	}
	if p.Feeder.Feeding.WaterLevelPct != nil || strings.Contains(string(payload), "water_level_pct") {
		t.Errorf("water level should be omitted without a reading: %s", payload)
	}
}

func TestFormatPayloadFeedingStart(t *testing.T) {
	payload, err := FormatPayload(logic.Event{Timestamp: ts, Type: logic.EventFeedingStart, SessionID: "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"feeder":{"timestamp":"2026-02-10T08:00:05Z","event":"feeding_start","session_id":"abc","scheduled":false}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadWater(t *testing.T) {
	event := logic.Event{
		Timestamp: ts,
		Type:      logic.EventWaterStatus,
		Water: &logic.WaterReport{
			Status:     logic.WaterStatusRefilling,
			State:      logic.WaterRefilling,
			DistanceCm: 17.5,
			HeightCm:   1.5,
			LevelPct:   50,
		},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	feeder := parsed["feeder"]
	if _, exists := feeder["scheduled"]; exists {
		t.Error("water events should not carry scheduled")
	}
	if _, exists := feeder["session_id"]; exists {
		t.Error("water events should not carry a session id")
	}
	water, ok := feeder["water"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing water object: %s", payload)
	}
	if water["status"] != "refilling" || water["level_pct"] != 50.0 || water["distance_cm"] != 17.5 {
		t.Errorf("unexpected water payload: %v", water)
	}
}

func TestFormatPayloadSensorErrorKeepsLevel(t *testing.T) {
	payload, _ := FormatPayload(logic.Event{
		Timestamp: ts,
		Type:      logic.EventWaterStatus,
		Water:     &logic.WaterReport{Status: logic.WaterStatusSensorError, State: logic.WaterChecking},
	})

	expected := `{"feeder":{"timestamp":"2026-02-10T08:00:05Z","event":"water_status","water":{"status":"sensor_error","state":"CHECKING","level_pct":0}}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	payload, _ := FormatPayload(logic.Event{Timestamp: time.Date(2026, 2, 10, 15, 0, 5, 0, loc), Type: logic.EventFeedingStart})

	if !strings.Contains(string(payload), `"timestamp":"2026-02-10T08:00:05Z"`) {
		t.Errorf("timestamp not converted to UTC: %s", payload)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:00:05Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "RECONNECTED"})

	expected := `{"system":{"timestamp":"2026-02-10T08:00:05Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestParseSchedules(t *testing.T) {
	entries, err := ParseSchedules([]byte(`[{"time":"08:00","enabled":true},{"time":"18:30","enabled":false}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []logic.ScheduleEntry{{Minute: 480, Enabled: true}, {Minute: 1110, Enabled: false}}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestParseSchedulesEmptySet(t *testing.T) {
	entries, err := ParseSchedules([]byte(`[]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty set, got %v", entries)
	}
}

func TestParseSchedulesRejectsWholeSet(t *testing.T) {
	tests := []string{
		`[{"time":"08:00","enabled":true},{"time":"25:00","enabled":true}]`,
		`{"time":"08:00"}`,
		`not json`,
	}
	for _, in := range tests {
		if entries, err := ParseSchedules([]byte(in)); err == nil {
			t.Errorf("ParseSchedules(%s): expected error, got %v", in, entries)
		}
	}
}

func TestFormatSchedules(t *testing.T) {
	data, err := FormatSchedules([]logic.ScheduleEntry{{Minute: 425, Enabled: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `[{"time":"07:05","enabled":true}]` {
		t.Errorf("unexpected output: %s", data)
	}
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand([]byte(`{"command":"feed"}`))
	if err != nil || c.Command != CommandFeed {
		t.Errorf("got %+v, %v", c, err)
	}
	if _, err := ParseCommand([]byte(`{"command":"explode"}`)); err == nil {
		t.Error("expected error for unknown command")
	}
	if _, err := ParseCommand([]byte(`feed`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	events := []logic.Event{
		{Timestamp: ts, Type: logic.EventFeedingStart, SessionID: "a"},
		{Timestamp: ts, Type: logic.EventWaterStatus, Water: &logic.WaterReport{Status: logic.WaterStatusOK}},
		{Timestamp: ts, Type: logic.EventFeedingComplete, SessionID: "a", Feeding: &logic.FeedingOutcome{Terminal: logic.TerminalCancelled}},
	}
	for _, e := range events {
		if err := f.Publish(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(f.Events) != 3 || len(f.Payloads) != 3 {
		t.Fatalf("expected 3 events and payloads, got %d and %d", len(f.Events), len(f.Payloads))
	}
	if got := f.EventsOfType(logic.EventFeedingComplete); len(got) != 1 || got[0].Feeding.Terminal != logic.TerminalCancelled {
		t.Errorf("EventsOfType: %+v", got)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(logic.Event{Type: logic.EventFeedingStart}); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected system publish error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherSystemEvents(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "HEARTBEAT"})

	names := f.SystemEventNames()
	if len(names) != 2 || names[0] != "STARTUP" || names[1] != "HEARTBEAT" {
		t.Errorf("unexpected names %v", names)
	}
	if !f.SystemEvents[0].Retained || f.SystemEvents[1].Retained {
		t.Error("retained flag not recorded")
	}
}

func TestFakePublisherMessages(t *testing.T) {
	f := NewFakePublisher()
	f.Inbox <- Message{Topic: TopicCommands, Payload: []byte(`{"command":"feed"}`)}

	select {
	case m := <-f.Messages():
		if m.Topic != TopicCommands {
			t.Errorf("topic: got %s", m.Topic)
		}
	default:
		t.Fatal("expected a queued message")
	}
}

func TestFakePublisherClose(t *testing.T) {
	f := NewFakePublisher()
	if f.Closed {
		t.Error("should not be closed initially")
	}
	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}
