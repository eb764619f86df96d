package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/pet-feeder/internal/logic"
	"github.com/sweeney/pet-feeder/internal/status"
)

// fakeQueue answers every request with err. A slow queue never answers and
// returns once the request context ends.
type fakeQueue struct {
	err      error
	slow     bool
	requests []string
}

func (q *fakeQueue) RequestFeed(ctx context.Context, source string) error {
	if q.err != nil {
		return q.err
	}
	q.requests = append(q.requests, source)
	if q.slow {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func newTestServer(t *testing.T, feeds FeedRequester) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		TickMs:      10,
		HeartbeatMs: 900000,
		TargetGrams: 65,
		TimeZone:    "UTC",
		Broker:      "tcp://192.168.1.200:1883",
		HTTPPort:    ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, feeds)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.UpdateWater(logic.WaterRefilling, time.Now(), 1, 0)
	tr.Notify(logic.Event{Type: logic.EventWaterStatus, Water: &logic.WaterReport{Status: logic.WaterStatusRefilling, LevelPct: 30}})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Feeder.Phase != "IDLE" {
		t.Errorf("Feeder.Phase: got %q, want IDLE", sj.Status.Feeder.Phase)
	}
	if sj.Status.Water.State != "REFILLING" || sj.Status.Water.Status != "refilling" {
		t.Errorf("Water: %+v", sj.Status.Water)
	}
	if sj.Status.Water.Refills != 1 {
		t.Errorf("Water.Refills: got %d, want 1", sj.Status.Water.Refills)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.Config.TickMs != 10 || sj.Status.Config.TargetG != 65 {
		t.Errorf("Config: %+v", sj.Status.Config)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getJSON(t, ts.URL+"/index.json")

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.ShowMessage("Water Level:", "82% (16.5cm)")
	tr.SetSchedule([]logic.ScheduleEntry{{Minute: 480, Enabled: true}}, time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC), true)
	tr.Notify(logic.Event{Type: logic.EventFeedingComplete, Feeding: &logic.FeedingOutcome{
		Terminal: logic.TerminalComplete, DispensedGrams: 63, AccuracyPct: 96.9, Band: logic.BandPerfect,
	}})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Water Level:", "08:00", "COMPLETE 63.0g", "Fri 08:00 UTC"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(string(body), "mqtt.connect") {
		t.Error("live script rendered without a websocket broker")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestHTMLLiveScriptOnlyWithWSBroker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, status.Config{WSBroker: "ws://192.168.1.200:9001"})
	srv := httptest.NewServer(New(":0", tr, nil).httpServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "mqtt.connect(broker") {
		t.Error("expected live script with a websocket broker")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestFeedRequiresPost(t *testing.T) {
	q := &fakeQueue{}
	ts, _ := newTestServer(t, q)

	resp, err := http.Get(ts.URL + "/api/feed")
	if err != nil {
		t.Fatalf("GET /api/feed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if len(q.requests) != 0 {
		t.Errorf("GET must not queue a feeding: %v", q.requests)
	}
}

func postFeed(t *testing.T, url string) (int, feedResponse) {
	t.Helper()
	resp, err := http.Post(url+"/api/feed", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/feed: %v", err)
	}
	defer resp.Body.Close()

	var fr feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return resp.StatusCode, fr
}

func TestFeedAccepted(t *testing.T) {
	q := &fakeQueue{}
	ts, _ := newTestServer(t, q)

	code, fr := postFeed(t, ts.URL)

	if code != http.StatusAccepted || !fr.Accepted || fr.Status != "started" {
		t.Errorf("got %d %+v, want 202 started", code, fr)
	}
	if len(q.requests) != 1 || q.requests[0] != "http" {
		t.Errorf("requests: %v", q.requests)
	}
}

func TestFeedQueueBusy(t *testing.T) {
	ts, _ := newTestServer(t, &fakeQueue{err: ErrFeedPending})

	code, fr := postFeed(t, ts.URL)

	if code != http.StatusConflict || fr.Accepted || fr.Error != ErrFeedPending.Error() {
		t.Errorf("got %d %+v, want 409 with error", code, fr)
	}
}

func TestFeedWhileFeeding(t *testing.T) {
	ts, _ := newTestServer(t, &fakeQueue{err: logic.ErrFeedingActive})

	code, fr := postFeed(t, ts.URL)

	if code != http.StatusConflict || fr.Accepted {
		t.Errorf("got %d %+v, want 409", code, fr)
	}
	if fr.Error != logic.ErrFeedingActive.Error() {
		t.Errorf("error: got %q", fr.Error)
	}
}

func TestFeedQueuedWhenLoopSlow(t *testing.T) {
	q := &fakeQueue{slow: true}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := New(":0", status.NewTracker(start, status.Config{}), q)
	srv.replyWait = 20 * time.Millisecond
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	code, fr := postFeed(t, ts.URL)

	if code != http.StatusAccepted || !fr.Accepted || fr.Status != "queued" {
		t.Errorf("got %d %+v, want 202 queued", code, fr)
	}
}

func TestFeedLoopStopped(t *testing.T) {
	ts, _ := newTestServer(t, &fakeQueue{err: context.Canceled})

	code, fr := postFeed(t, ts.URL)

	if code != http.StatusServiceUnavailable || fr.Accepted {
		t.Errorf("got %d %+v, want 503", code, fr)
	}
}

func TestFeedDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	code, fr := postFeed(t, ts.URL)

	if code != http.StatusServiceUnavailable || fr.Accepted {
		t.Errorf("got %d %+v, want 503", code, fr)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Feeder.LastFeeding != nil {
		t.Error("expected no last feeding initially")
	}

	tr.Notify(logic.Event{Type: logic.EventFeedingComplete, Feeding: &logic.FeedingOutcome{Terminal: logic.TerminalTimeout, DispensedGrams: 12}})
	tr.UpdateFeeder(logic.PhaseIdle, nil, 1)
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if sj2.Status.Feeder.LastFeeding == nil || sj2.Status.Feeder.LastFeeding.Result != "TIMEOUT" {
		t.Errorf("LastFeeding: %+v", sj2.Status.Feeder.LastFeeding)
	}
	if sj2.Status.Feeder.Feedings != 1 {
		t.Errorf("Feedings: got %d, want 1", sj2.Status.Feeder.Feedings)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
