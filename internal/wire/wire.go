// Package wire holds the header mapping shared by the broker bridges.
//
// A qbus message travels as its payload plus a flat string header set:
// id, name, producedAt (unix nanoseconds) and every metadata key prefixed
// with "meta:".
package wire

import (
	"strconv"
	"strings"
	"time"

	"github.com/trickstertwo/qbus"
)

const (
	FieldID         = "id"
	FieldName       = "name"
	FieldPayload    = "payload"
	FieldProducedAt = "producedAt"
	MetaPrefix      = "meta:"
)

// Headers flattens everything except the payload of msg.
func Headers(msg *qbus.Message) map[string]string {
	meta := msg.Metadata()
	h := make(map[string]string, 3+len(meta))
	if id := msg.ID(); id != "" {
		h[FieldID] = id
	}
	if name := msg.Name(); name != "" {
		h[FieldName] = name
	}
	if t := msg.ProducedAt(); !t.IsZero() {
		h[FieldProducedAt] = strconv.FormatInt(t.UnixNano(), 10)
	}
	for k, v := range meta {
		h[MetaPrefix+k] = v
	}
	return h
}

// Message rebuilds a message for the local queue from payload and headers.
// fallbackID is used when the headers carry no id (e.g. a foreign producer).
// Headers that are neither known fields nor prefixed metadata are ignored.
func Message(queue string, payload []byte, h map[string]string, fallbackID string) *qbus.Message {
	var meta map[string]string
	for k, v := range h {
		if rest, ok := strings.CutPrefix(k, MetaPrefix); ok {
			if meta == nil {
				meta = make(map[string]string, 4)
			}
			meta[rest] = v
		}
	}

	id := h[FieldID]
	if id == "" {
		id = fallbackID
	}
	opts := []qbus.MessageOption{
		qbus.WithID(id),
		qbus.WithName(h[FieldName]),
		qbus.WithMetadata(meta),
	}
	if ns, ok := ParseNanos(h[FieldProducedAt]); ok {
		opts = append(opts, qbus.WithProducedAt(time.Unix(0, ns)))
	}
	return qbus.NewMessage(queue, payload, opts...)
}

// ParseNanos parses a unix-nanosecond timestamp; zero and garbage are rejected.
func ParseNanos(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && i > 0 {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return int64(f), true
	}
	return 0, false
}
