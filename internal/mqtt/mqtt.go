// Package mqtt publishes controller events to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/dust-controller/internal/logic"
)

// Topic suffixes under the configured prefix.
const (
	suffixEvents    = "events"
	suffixActuators = "actuators"
	suffixSystem    = "system"
)

// Topics are the MQTT topics the controller publishes to.
type Topics struct {
	// Events carries tool status transitions.
	Events string
	// Actuators carries gate and collector actuations.
	Actuators string
	// System carries lifecycle events and the last will.
	System string
}

// NewTopics derives the topics from a prefix such as "shop/dust".
func NewTopics(prefix string) Topics {
	return Topics{
		Events:    prefix + "/" + suffixEvents,
		Actuators: prefix + "/" + suffixActuators,
		System:    prefix + "/" + suffixSystem,
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishTransition sends a tool status transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(tr logic.Transition) error

	// PublishActuation sends a gate or collector actuation to the broker.
	PublishActuation(a logic.Actuation) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TransitionPayload is the MQTT message for a tool transition.
type TransitionPayload struct {
	Tool TransitionInner `json:"tool"`
}

// TransitionInner contains the transition details.
type TransitionInner struct {
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Cause     string `json:"cause"`
}

// FormatTransition creates the JSON payload for a tool transition.
func FormatTransition(tr logic.Transition) ([]byte, error) {
	return json.Marshal(TransitionPayload{
		Tool: TransitionInner{
			Timestamp: tr.At.UTC().Format(time.RFC3339),
			ID:        tr.Tool,
			From:      string(tr.From),
			To:        string(tr.To),
			Cause:     string(tr.Cause),
		},
	})
}

// ActuationPayload is the MQTT message for an actuator write.
type ActuationPayload struct {
	Actuator ActuationInner `json:"actuator"`
}

// ActuationInner contains the actuation details.
type ActuationInner struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	State     string `json:"state"`
}

// FormatActuation creates the JSON payload for a gate or collector actuation.
func FormatActuation(a logic.Actuation) ([]byte, error) {
	return json.Marshal(ActuationPayload{
		Actuator: ActuationInner{
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
			Kind:      string(a.Kind),
			ID:        a.ID,
			State:     a.State,
		},
	})
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

// NopPublisher discards everything. It stands in when MQTT is disabled.
type NopPublisher struct{}

// PublishTransition discards tr.
func (NopPublisher) PublishTransition(logic.Transition) error { return nil }

// PublishActuation discards a.
func (NopPublisher) PublishActuation(logic.Actuation) error { return nil }

// PublishSystem discards event.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// IsConnected is always false.
func (NopPublisher) IsConnected() bool { return false }
