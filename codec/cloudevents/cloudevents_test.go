package cloudevents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/qbus"
)

type greeting struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

func TestCodec_RoundTrip(t *testing.T) {
	c := New("test")
	c.newID = func() string { return "evt-1" }
	c.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	data, err := c.Marshal(greeting{MessageID: "m1", Content: "hi"})
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "1.0", envelope["specversion"])
	assert.Equal(t, "evt-1", envelope["id"])
	assert.Equal(t, "test", envelope["source"])
	assert.Equal(t, "cloudevents.greeting", envelope["type"])

	var got greeting
	require.NoError(t, c.Unmarshal(data, &got))
	assert.Equal(t, greeting{MessageID: "m1", Content: "hi"}, got)

	assert.Error(t, c.Unmarshal([]byte("{"), &got))
}

func TestCodec_Registered(t *testing.T) {
	c, err := qbus.NewCodec(Name)
	require.NoError(t, err)
	assert.Equal(t, Name, c.Name())
}

func TestCodec_OnBus(t *testing.T) {
	bus, err := qbus.NewBusBuilder().
		WithCodec(Name).
		WithSyncDispatch(true).
		WithAutoStart(true).
		Build()
	require.NoError(t, err)
	defer bus.Close(context.Background())

	var got greeting
	_, err = bus.Subscribe(context.Background(), "ce", func(ctx context.Context, msg *qbus.Message) error {
		var derr error
		got, derr = qbus.Decode[greeting](ctx, msg)
		return derr
	})
	require.NoError(t, err)

	_, err = bus.PublishValue(context.Background(), "ce", "Greeting", greeting{MessageID: "1", Content: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, greeting{MessageID: "1", Content: "x"}, got)
}

func TestToEventFromEvent(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	msg := qbus.NewMessage("orders", []byte(`{"n":1}`),
		qbus.WithID("m-1"),
		qbus.WithName("OrderPlaced"),
		qbus.WithProducedAt(at),
		qbus.WithMetadata(map[string]string{"tenant": "acme", "Bad-Key": "dropped"}),
	)

	e, err := ToEvent(msg, "svc")
	require.NoError(t, err)
	assert.Equal(t, "m-1", e.ID())
	assert.Equal(t, "OrderPlaced", e.Type())
	assert.Equal(t, "svc", e.Source())
	assert.Equal(t, "acme", e.Extensions()["tenant"])
	assert.NotContains(t, e.Extensions(), "Bad-Key")
	require.NoError(t, e.Validate())

	back, err := FromEvent(e, "")
	require.NoError(t, err)
	assert.Equal(t, "orders", back.Queue())
	assert.Equal(t, "m-1", back.ID())
	assert.Equal(t, "OrderPlaced", back.Name())
	assert.True(t, at.Equal(back.ProducedAt()))
	assert.JSONEq(t, `{"n":1}`, string(back.Payload()))
	v, _ := back.Header("tenant")
	assert.Equal(t, "acme", v)

	other, err := FromEvent(e, "override")
	require.NoError(t, err)
	assert.Equal(t, "override", other.Queue())

	_, err = ToEvent(nil, "")
	assert.Error(t, err)
	_, err = FromEvent(nil, "q")
	assert.Error(t, err)
}
