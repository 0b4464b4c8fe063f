// Package bus defines the transport abstraction the simulator and the
// supervisory side exchange messages over. The production implementation
// is the MQTT client under infra/mqtt; tests use the in-memory bus.
package bus

import "errors"

// Handler processes one inbound message. Handlers must tolerate duplicate
// and out-of-order delivery; the transport guarantees at-least-once per
// topic and nothing across topics.
type Handler func(topic string, payload []byte)

// Bus is a topic-based publish/subscribe transport.
type Bus interface {
	// Publish sends the payload on the topic. Publishing is fire-and-forget
	// from the caller's point of view; implementations may retry internally.
	Publish(topic string, payload []byte) error

	// Subscribe registers the handler for the topic. Topics may contain the
	// single-level wildcard "+".
	Subscribe(topic string, h Handler) error

	// Close releases the transport connection.
	Close()
}

// ErrNotConnected is returned when a publish is attempted while the
// transport has no usable connection.
var ErrNotConnected = errors.New("bus: not connected")
