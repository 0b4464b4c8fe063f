package bus

import (
	"strings"
	"sync"
)

// MemoryBus is an in-process Bus. It delivers synchronously to matching
// subscribers and records everything published, which makes message-level
// assertions in tests straightforward.
type MemoryBus struct {
	mu     sync.Mutex
	subs   []memorySub
	sent   []Message
	closed bool
}

// Message is one published record kept by the MemoryBus.
type Message struct {
	Topic   string
	Payload []byte
}

type memorySub struct {
	filter  string
	handler Handler
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (m *MemoryBus) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrNotConnected
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.sent = append(m.sent, Message{Topic: topic, Payload: cp})
	var handlers []Handler
	for _, s := range m.subs {
		if topicMatches(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(topic, cp)
	}
	return nil
}

func (m *MemoryBus) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.subs = append(m.subs, memorySub{filter: topic, handler: h})
	return nil
}

func (m *MemoryBus) Close() {
	m.mu.Lock()
	m.closed = true
	m.subs = nil
	m.mu.Unlock()
}

// Published returns a copy of every message published so far.
func (m *MemoryBus) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// PublishedOn returns the payloads published on one topic, oldest first.
func (m *MemoryBus) PublishedOn(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, msg := range m.sent {
		if msg.Topic == topic {
			out = append(out, msg.Payload)
		}
	}
	return out
}

// Reset drops the recorded messages but keeps subscriptions.
func (m *MemoryBus) Reset() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

// topicMatches implements single-level "+" wildcard matching.
func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	if len(fp) != len(tp) {
		return false
	}
	for i := range fp {
		if fp[i] != "+" && fp[i] != tp[i] {
			return false
		}
	}
	return true
}
