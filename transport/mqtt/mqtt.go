// Package mqtt carries heartbeat edges and monitor lifecycle events over
// an MQTT broker.
//
// Beats travel as single-byte payloads ('+' or '.') on the beat topic at
// QoS 0: a lost beat is indistinguishable from a late one, and the
// watchdog already handles both. Lifecycle events (startup, shutdown,
// state flips) are JSON documents on the system topic at QoS 1, buffered
// locally while the broker is unreachable and replayed on reconnect.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Default topics. Beats and system events are kept on separate topics so
// a subscriber can watch state flips without drinking the beat stream.
const (
	TopicBeats  = "beatmon/heartbeat/beats"
	TopicSystem = "beatmon/heartbeat/system"
)

// Config carries broker connection settings shared by senders, receivers
// and system publishers.
type Config struct {
	Broker   string // broker URL, e.g. "tcp://localhost:1883"
	ClientID string // base client ID; a role suffix is appended per connection
	Topic    string // beat topic
}

// DefaultConfig returns settings for a broker on localhost.
func DefaultConfig() Config {
	return Config{
		Broker:   "tcp://localhost:1883",
		ClientID: "beatmon",
		Topic:    TopicBeats,
	}
}

// Publisher publishes monitor lifecycle events.
type Publisher interface {
	// PublishSystem publishes a lifecycle event to the system topic.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports broker connectivity for status reporting.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a monitor lifecycle event: startup, shutdown, or a
// liveness state flip.
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP", "SHUTDOWN", "STATUS"
	Reason    string // optional detail, e.g. "SIGTERM" or a fault kind

	// RawPayload, when set, is published as-is instead of the standard
	// envelope. Used for preformatted status documents.
	RawPayload []byte

	// Retained marks the message as retained so late subscribers see the
	// last lifecycle event immediately.
	Retained bool
}

// SystemPayload is the JSON envelope for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner carries the system event fields.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload renders a system event as JSON. If the event
// carries a raw payload it is returned unchanged.
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

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal system payload: %w", err)
	}
	return data, nil
}
