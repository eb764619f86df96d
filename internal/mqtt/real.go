package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/pet-feeder/internal/logger"
	"github.com/sweeney/pet-feeder/internal/logic"
)

// Options configures a RealClient.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int // publishes kept while disconnected
	InboxSize  int // inbound messages waiting for the control loop
	OutboxSize int // publishes waiting for the network goroutine
}

// Defaults for Options.
const (
	DefaultClientID   = "pet-feeder"
	DefaultBufferSize = 100
	DefaultInboxSize  = 16
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealClient publishes to an actual MQTT broker and subscribes to schedule
// sets and commands. Publishing never blocks the caller: messages go through
// an Outbox, and those sent while the connection is down are buffered and
// replayed on reconnect.
type RealClient struct {
	id     string
	client paho.Client
	inbox  chan Message
	out    *Outbox

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool // has connected at least once
}

// NewRealClient creates a client and starts connecting. An unreachable
// broker is not an error: the client keeps retrying in the background and
// buffers publishes until it gets through.
func NewRealClient(o Options) (*RealClient, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt: no broker configured")
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	c := newRealClient(o)
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(c.id).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "err", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warn("mqtt broker not reachable yet, retrying in background", "broker", o.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// newRealClient fills in defaults and starts the outbox. The caller sets
// client before the first publish.
func newRealClient(o Options) *RealClient {
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.InboxSize <= 0 {
		o.InboxSize = DefaultInboxSize
	}
	c := &RealClient{
		id:     o.ClientID,
		inbox:  make(chan Message, o.InboxSize),
		buffer: newRingBuffer(o.BufferSize),
	}
	c.out = NewOutbox(wire{c}, o.OutboxSize)
	return c
}

// onConnect runs on every (re)connection: subscribe, then replay whatever
// was published while offline.
func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	reconnect := c.connected
	c.connected = true
	c.mu.Unlock()

	for _, topic := range []string{TopicSchedules, TopicCommands} {
		token := client.Subscribe(topic, 1, c.onMessage)
		if !token.WaitTimeout(publishTimeout) {
			logger.Warn("mqtt subscribe timeout", "topic", topic)
			continue
		}
		if err := token.Error(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", topic, "err", err)
		}
	}

	go c.replay(reconnect)
}

func (c *RealClient) replay(reconnect bool) {
	c.mu.Lock()
	msgs, dropped := c.buffer.drain()
	c.mu.Unlock()

	if len(msgs) > 0 || dropped > 0 {
		logger.Info("mqtt replaying buffered messages", "count", len(msgs), "dropped", dropped)
	}
	for _, m := range msgs {
		if err := c.publish(m); err != nil {
			logger.Warn("mqtt replay failed", "topic", m.topic, "err", err)
		}
	}
	if reconnect {
		if err := c.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			logger.Warn("mqtt reconnected event failed", "err", err)
		}
	}
}

// onMessage is called from paho's goroutine; it must never block the
// network side, so a full inbox drops the message.
func (c *RealClient) onMessage(_ paho.Client, m paho.Message) {
	msg := Message{Topic: m.Topic(), Payload: append([]byte(nil), m.Payload()...)}
	select {
	case c.inbox <- msg:
	default:
		logger.Warn("mqtt inbox full, dropping message", "topic", msg.Topic)
	}
}

// Messages returns the inbound message channel.
func (c *RealClient) Messages() <-chan Message {
	return c.inbox
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Publish queues a feeder event. QoS 0, not retained.
func (c *RealClient) Publish(event logic.Event) error {
	return c.out.Publish(event)
}

// PublishSystem queues a system lifecycle event. QoS 1 so that lifecycle
// transitions are not lost.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	return c.out.PublishSystem(event)
}

// Close flushes the outbox and disconnects from the broker.
func (c *RealClient) Close() error {
	return c.out.Close()
}

// wire is the blocking side of a RealClient. Only the outbox worker calls it.
type wire struct {
	c *RealClient
}

func (w wire) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return w.c.send(bufferedMsg{topic: TopicEvents, payload: payload})
}

func (w wire) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return w.c.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (w wire) Close() error {
	w.c.client.Disconnect(1000) // 1 second timeout
	return nil
}

// send publishes now or buffers for replay when the connection is down.
func (c *RealClient) send(m bufferedMsg) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		first := c.buffer.push(m)
		c.mu.Unlock()
		if first {
			logger.Warn("mqtt buffer full, dropping oldest messages")
		}
		logger.Debug("mqtt offline, buffered", "topic", m.topic)
		return nil
	}
	return c.publish(m)
}

func (c *RealClient) publish(m bufferedMsg) error {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}
