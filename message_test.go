package qbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Immutable(t *testing.T) {
	payload := []byte("hello")
	meta := map[string]string{"k": "v"}
	msg := NewMessage("q", payload, WithMetadata(meta), WithName("Greeting"))

	payload[0] = 'J'
	meta["k"] = "changed"
	assert.Equal(t, "hello", string(msg.Payload()))
	v, ok := msg.Header("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	out := msg.Payload()
	out[0] = 'X'
	md := msg.Metadata()
	md["k"] = "x"
	assert.Equal(t, "hello", string(msg.Payload()))
	assert.Equal(t, map[string]string{"k": "v"}, msg.Metadata())
	assert.Equal(t, "Greeting", msg.Name())
	assert.Equal(t, "q", msg.Queue())
}

func TestMessage_MetadataNeverNil(t *testing.T) {
	msg := NewMessage("q", nil)
	assert.NotNil(t, msg.Metadata())
	_, ok := msg.Header("missing")
	assert.False(t, ok)
}

func TestMessage_StampedKeepsPresetValues(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now := at.Add(time.Hour)

	preset := NewMessage("q", nil, WithID("mine"), WithProducedAt(at))
	s := preset.stamped("generated", now)
	assert.Equal(t, "mine", s.ID())
	assert.Equal(t, at, s.ProducedAt())

	bare := NewMessage("q", nil)
	s = bare.stamped("generated", now)
	assert.Equal(t, "generated", s.ID())
	assert.Equal(t, now, s.ProducedAt())
	assert.Empty(t, bare.ID(), "original untouched")
}
