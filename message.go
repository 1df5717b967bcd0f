package qbus

import (
	"maps"
	"slices"
	"time"
)

// Message is the envelope traveling the bus. It is immutable once built:
// accessors hand out copies of the payload and metadata.
type Message struct {
	id         string
	queue      string
	name       string
	payload    []byte
	metadata   map[string]string
	producedAt time.Time
}

// MessageOption customizes a Message under construction.
type MessageOption func(*Message)

// WithID presets the message id. An empty id is assigned by the bus.
func WithID(id string) MessageOption {
	return func(m *Message) { m.id = id }
}

// WithName sets the logical message name (type), useful for routing and metrics.
func WithName(name string) MessageOption {
	return func(m *Message) { m.name = name }
}

// WithMetadata attaches headers to the message.
func WithMetadata(meta map[string]string) MessageOption {
	return func(m *Message) {
		if len(meta) > 0 {
			m.metadata = maps.Clone(meta)
		}
	}
}

// WithProducedAt overrides the production timestamp.
func WithProducedAt(t time.Time) MessageOption {
	return func(m *Message) { m.producedAt = t }
}

// NewMessage builds a message for queue. The payload is copied.
func NewMessage(queue string, payload []byte, opts ...MessageOption) *Message {
	m := &Message{
		queue:   queue,
		payload: slices.Clone(payload),
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	return m
}

func (m *Message) ID() string            { return m.id }
func (m *Message) Queue() string         { return m.queue }
func (m *Message) Name() string          { return m.name }
func (m *Message) ProducedAt() time.Time { return m.producedAt }

// Payload returns a copy of the message body.
func (m *Message) Payload() []byte { return slices.Clone(m.payload) }

// Metadata returns a copy of the message headers (never nil).
func (m *Message) Metadata() map[string]string {
	if m.metadata == nil {
		return map[string]string{}
	}
	return maps.Clone(m.metadata)
}

// Header returns a single metadata value.
func (m *Message) Header(key string) (string, bool) {
	v, ok := m.metadata[key]
	return v, ok
}

// stamped returns a copy of m carrying the bus-assigned id and timestamp.
// The original is left untouched so a caller-owned message stays immutable.
func (m *Message) stamped(id string, now time.Time) *Message {
	cp := *m
	if cp.id == "" {
		cp.id = id
	}
	if cp.producedAt.IsZero() {
		cp.producedAt = now
	}
	return &cp
}
