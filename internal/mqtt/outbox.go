package mqtt

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeney/pet-feeder/internal/logger"
	"github.com/sweeney/pet-feeder/internal/logic"
)

// DefaultOutboxSize is how many publishes may wait for the broker.
const DefaultOutboxSize = 64

const outboxDrainTimeout = 5 * time.Second

var (
	ErrOutboxFull   = errors.New("mqtt: outbox full")
	ErrOutboxClosed = errors.New("mqtt: outbox closed")
)

// Outbox moves publishing off the caller's goroutine. Publish and
// PublishSystem only enqueue; a worker hands each message to next in order
// and logs what fails. The control loop therefore never waits on a broker
// round trip.
type Outbox struct {
	next    Publisher
	queue   chan outMsg
	stopped chan struct{}

	mu     sync.Mutex
	closed bool
}

type outMsg struct {
	event  *logic.Event
	system *SystemEvent
}

// NewOutbox starts the worker. size <= 0 means DefaultOutboxSize.
func NewOutbox(next Publisher, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &Outbox{
		next:    next,
		queue:   make(chan outMsg, size),
		stopped: make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) Publish(event logic.Event) error {
	return o.put(outMsg{event: &event})
}

func (o *Outbox) PublishSystem(event SystemEvent) error {
	return o.put(outMsg{system: &event})
}

// Pending returns the number of queued messages.
func (o *Outbox) Pending() int {
	return len(o.queue)
}

func (o *Outbox) put(m outMsg) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- m:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (o *Outbox) run() {
	defer close(o.stopped)
	for m := range o.queue {
		if m.system != nil {
			if err := o.next.PublishSystem(*m.system); err != nil {
				logger.Warn("mqtt system publish failed", "event", m.system.Event, "err", err)
			}
			continue
		}
		if err := o.next.Publish(*m.event); err != nil {
			logger.Warn("mqtt publish failed", "event", m.event.Type, "err", err)
		}
	}
}

// Close stops accepting messages, gives the worker a few seconds to flush
// the queue and then closes next.
func (o *Outbox) Close() error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.stopped:
	case <-time.After(outboxDrainTimeout):
		logger.Warn("mqtt outbox not flushed", "pending", o.Pending())
	}
	return o.next.Close()
}
