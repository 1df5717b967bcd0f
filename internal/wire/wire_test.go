package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/trickstertwo/qbus"
)

func TestHeadersRoundTrip(t *testing.T) {
	at := time.Unix(0, 1700000000123456789)
	msg := qbus.NewMessage("orders", []byte("body"),
		qbus.WithID("m-1"),
		qbus.WithName("OrderPlaced"),
		qbus.WithProducedAt(at),
		qbus.WithMetadata(map[string]string{"tenant": "acme"}),
	)

	h := Headers(msg)
	assert.Len(t, h, 4)
	assert.Equal(t, "m-1", h[FieldID])
	assert.Equal(t, "OrderPlaced", h[FieldName])
	assert.Equal(t, "1700000000123456789", h[FieldProducedAt])
	assert.Equal(t, "acme", h["meta:tenant"])

	h["x-foreign"] = "ignored"
	back := Message("local", []byte("body"), h, "fallback")
	assert.Equal(t, "local", back.Queue())
	assert.Equal(t, "m-1", back.ID())
	assert.Equal(t, "OrderPlaced", back.Name())
	assert.True(t, at.Equal(back.ProducedAt()))
	assert.Equal(t, map[string]string{"tenant": "acme"}, back.Metadata())
	assert.Equal(t, "body", string(back.Payload()))
}

func TestMessage_FallbackID(t *testing.T) {
	m := Message("q", nil, map[string]string{FieldProducedAt: "nope"}, "1-0")
	assert.Equal(t, "1-0", m.ID())
	assert.True(t, m.ProducedAt().IsZero())
}

func TestParseNanos(t *testing.T) {
	n, ok := ParseNanos("42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	n, ok = ParseNanos("1.5e3")
	assert.True(t, ok)
	assert.Equal(t, int64(1500), n)

	_, ok = ParseNanos("0")
	assert.False(t, ok)
	_, ok = ParseNanos("")
	assert.False(t, ok)
}
