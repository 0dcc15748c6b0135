package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/dust-controller/internal/logic"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are queued and replayed in order on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *zap.Logger

	mu     sync.Mutex
	queue  *offlineQueue
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting in the background. The broker's last will marks the controller
// OFFLINE on the system topic.
func NewRealPublisher(broker string, topics Topics, logger *zap.Logger) *RealPublisher {
	p := &RealPublisher{
		topics: topics,
		logger: logger,
		queue:  newOfflineQueue(bufferCapacity),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("dust-controller-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending, dropped := p.queue.drain()
	p.mu.Unlock()

	p.logger.Info("mqtt connected", zap.Int("replaying", len(pending)), zap.Int("dropped", dropped))
	for _, msg := range pending {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			p.logger.Warn("mqtt replay failed", zap.String("topic", msg.topic), zap.Error(token.Error()))
		}
	}

	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	c.Publish(p.topics.System, 1, false, payload)
}

// PublishTransition sends a tool status transition to the broker.
func (p *RealPublisher) PublishTransition(tr logic.Transition) error {
	payload, err := FormatTransition(tr)
	if err != nil {
		return fmt.Errorf("format transition: %w", err)
	}
	// QoS 1: transitions drive dashboards that must not miss an edge.
	return p.publish(p.topics.Events, 1, false, payload)
}

// PublishActuation sends a gate or collector actuation to the broker.
func (p *RealPublisher) PublishActuation(a logic.Actuation) error {
	payload, err := FormatActuation(a)
	if err != nil {
		return fmt.Errorf("format actuation: %w", err)
	}
	return p.publish(p.topics.Actuators, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		first := p.queue.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		if first {
			p.logger.Warn("mqtt offline queue full, dropping messages", zap.Int("capacity", bufferCapacity))
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
