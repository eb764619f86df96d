package mqtt

import (
	"github.com/sweeney/pet-feeder/internal/logic"
)

// FakePublisher stands in for the broker in tests: it keeps every feeding
// and water event it is handed and feeds scripted schedule or command
// messages back to the control loop. It is not safe for concurrent use.
type FakePublisher struct {
	Events   []logic.Event // feeder and water events, in publish order
	Payloads [][]byte      // pets/feeder/events bodies for Events

	SystemEvents   []SystemEvent // STARTUP, HEARTBEAT, SHUTDOWN and friends
	SystemPayloads [][]byte

	// Broker failures to simulate. Nothing is recorded while set.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool

	// Inbox plays the subscribed topics. Tests queue messages on it before
	// the loop starts.
	Inbox chan Message
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Inbox: make(chan Message, DefaultInboxSize)}
}

func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

func (f *FakePublisher) Messages() <-chan Message {
	return f.Inbox
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// SystemEventNames lists the lifecycle events seen so far, oldest first.
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// EventsOfType filters Events, e.g. to the feeding_complete outcomes.
func (f *FakePublisher) EventsOfType(t logic.EventType) []logic.Event {
	var out []logic.Event
	for _, e := range f.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
