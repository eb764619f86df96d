package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/pet-feeder/internal/logic"
)

// gatedPublisher holds every feeder event until gate is closed and signals
// entered as each one arrives.
type gatedPublisher struct {
	*FakePublisher
	entered chan struct{}
	gate    chan struct{}
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{
		FakePublisher: NewFakePublisher(),
		entered:       make(chan struct{}, 16),
		gate:          make(chan struct{}),
	}
}

func (g *gatedPublisher) Publish(event logic.Event) error {
	g.entered <- struct{}{}
	<-g.gate
	return g.FakePublisher.Publish(event)
}

func TestOutboxDeliversInOrder(t *testing.T) {
	f := NewFakePublisher()
	o := NewOutbox(f, 0)

	o.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP"})
	o.Publish(logic.Event{Timestamp: ts, Type: logic.EventFeedingStart, SessionID: "a"})
	o.Publish(logic.Event{Timestamp: ts, Type: logic.EventFeedingComplete, SessionID: "a", Feeding: &logic.FeedingOutcome{Terminal: logic.TerminalComplete}})
	o.PublishSystem(SystemEvent{Timestamp: ts, Event: "SHUTDOWN"})

	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(f.Events) != 2 || f.Events[0].Type != logic.EventFeedingStart || f.Events[1].Type != logic.EventFeedingComplete {
		t.Errorf("events: %+v", f.Events)
	}
	if names := f.SystemEventNames(); len(names) != 2 || names[1] != "SHUTDOWN" {
		t.Errorf("system events: %v", names)
	}
	if !f.Closed {
		t.Error("Close should close the wrapped publisher")
	}
}

func TestOutboxFull(t *testing.T) {
	g := newGatedPublisher()
	o := NewOutbox(g, 1)

	ev := logic.Event{Timestamp: ts, Type: logic.EventFeedingStart}
	if err := o.Publish(ev); err != nil {
		t.Fatalf("first: %v", err)
	}
	<-g.entered // worker is stuck on the first event

	if err := o.Publish(ev); err != nil {
		t.Fatalf("second: %v", err)
	}
	start := time.Now()
	if err := o.Publish(ev); !errors.Is(err, ErrOutboxFull) {
		t.Errorf("third: got %v, want ErrOutboxFull", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("a full outbox must not block")
	}

	close(g.gate)
	o.Close()
	if len(g.Events) != 2 {
		t.Errorf("delivered %d events, want 2", len(g.Events))
	}
}

func TestOutboxLogsDeliveryErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	o := NewOutbox(f, 0)

	if err := o.Publish(logic.Event{Timestamp: ts, Type: logic.EventFeedingStart}); err != nil {
		t.Errorf("delivery errors are not the caller's: %v", err)
	}
	if err := o.PublishSystem(SystemEvent{Timestamp: ts, Event: "HEARTBEAT"}); err != nil {
		t.Errorf("PublishSystem: %v", err)
	}
	o.Close()

	if len(f.Events) != 0 || len(f.SystemEvents) != 1 {
		t.Errorf("events %d system %d, want 0 and 1", len(f.Events), len(f.SystemEvents))
	}
}

func TestOutboxClosed(t *testing.T) {
	o := NewOutbox(NewFakePublisher(), 0)
	o.Close()

	if err := o.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); !errors.Is(err, ErrOutboxClosed) {
		t.Errorf("got %v, want ErrOutboxClosed", err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
