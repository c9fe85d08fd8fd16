package mqtt

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

// AppID seeds the protected machine ID used for the client ID.
const AppID = "spi-handshake"

// Options configures a RealPublisher.
type Options struct {
	Broker string
	// ClientID defaults to ClientID(AppID).
	ClientID   string
	BufferSize int
	Logger     *slog.Logger
	// OnConnectionChange, if set, is called from paho's goroutines whenever the
	// connection comes up or drops.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while the
// connection is down are buffered and replayed in order once it is back.
type RealPublisher struct {
	client paho.Client
	logger *slog.Logger
	notify func(bool)

	mu        sync.Mutex
	buf       *offlineBuffer
	connected bool
	replaying bool
	everUp    bool
}

// ClientID derives a stable per-machine client ID. The raw machine ID is never
// sent; it is hashed with the app name. Falls back to the hostname.
func ClientID(app string) string {
	id, err := machineid.ProtectedID(app)
	if err != nil || len(id) < 12 {
		host, herr := os.Hostname()
		if herr != nil {
			host = "unknown"
		}
		return app + "-" + host
	}
	return app + "-" + id[:12]
}

// NewRealPublisher creates a publisher and starts connecting to the broker in the
// background. It never fails; paho keeps retrying and messages are buffered until
// the first connection succeeds.
func NewRealPublisher(o Options) *RealPublisher {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if o.ClientID == "" {
		o.ClientID = ClientID(AppID)
	}
	p := &RealPublisher{
		logger: logger.With("component", "mqtt", "broker", o.Broker),
		notify: o.OnConnectionChange,
		buf:    newOfflineBuffer(o.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		p.logger.Warn("broker not reachable yet, buffering until connected")
	} else if err := token.Error(); err != nil {
		p.logger.Warn("connect failed, retrying in background", "err", err)
	}
	p.logger.Info("mqtt client started", "client_id", o.ClientID)
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.connected = true
	p.replaying = true
	p.everUp = true
	backlog := p.buf.len()
	p.mu.Unlock()

	p.logger.Info("connected", "replaying", backlog)
	if p.notify != nil {
		p.notify(true)
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(TopicSystem, 1, false, payload)
	}
	p.replay(c)
}

// replay publishes the offline buffer oldest first. send keeps buffering until the
// buffer is empty, so messages arriving meanwhile queue behind the backlog.
func (p *RealPublisher) replay(c paho.Client) {
	dropped := 0
	for {
		p.mu.Lock()
		if !p.connected {
			// Lost again; what is left stays buffered for the next connect.
			p.replaying = false
			p.mu.Unlock()
			break
		}
		pending, d := p.buf.drainAll()
		dropped += d
		if len(pending) == 0 {
			p.replaying = false
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, m := range pending {
			c.Publish(m.topic, m.qos, m.retained, m.payload)
		}
	}
	if dropped > 0 {
		p.logger.Warn("messages dropped while offline", "dropped", dropped)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.logger.Warn("connection lost", "err", err)
	if p.notify != nil {
		p.notify(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.connected || p.replaying {
		if p.buf.push(msg) {
			p.logger.Warn("offline buffer full, dropping oldest", "capacity", p.buf.capacity)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// Publish sends a cycle report to the MQTT broker.
func (p *RealPublisher) Publish(r handshake.CycleReport) error {
	payload, err := FormatPayload(r)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
