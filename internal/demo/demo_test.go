package demo

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/qbus"
)

func newBus(t *testing.T, rec *qbus.Recorder) *qbus.Bus {
	t.Helper()
	bus, err := qbus.NewBusBuilder().
		WithObserver(rec).
		WithSyncDispatch(true).
		WithAutoStart(true).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus
}

func flush(t *testing.T, bus *qbus.Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.FlushEvents(ctx))
}

func TestPublishIsPublishedAndConsumed(t *testing.T) {
	rec := qbus.NewRecorder()
	bus := newBus(t, rec)

	_, err := bus.Subscribe(context.Background(), Queue, func(context.Context, *qbus.Message) error { return nil })
	require.NoError(t, err)

	_, err = bus.PublishValue(context.Background(), Queue, NoteName, Note{MessageID: "n-1", Content: "Test message"}, nil)
	require.NoError(t, err)
	flush(t, bus)

	assert.True(t, rec.Any(qbus.EventPublished, Queue))
	assert.True(t, rec.Any(qbus.EventConsumed, Queue))
	assert.Equal(t, uint64(1), bus.PublishedCount(Queue))
	assert.Equal(t, uint64(1), bus.ConsumedCount(Queue))
}

func TestConsumerReceivesContent(t *testing.T) {
	rec := qbus.NewRecorder()
	bus := newBus(t, rec)

	var out bytes.Buffer
	c := NewConsumer(&out, nil)
	_, err := bus.Subscribe(context.Background(), Queue, c.Handle)
	require.NoError(t, err)

	id, err := bus.PublishValue(context.Background(), Queue, NoteName, Note{MessageID: "n-42", Content: "Test weather forecast"}, nil)
	require.NoError(t, err)
	flush(t, bus)

	consumed := rec.Events(qbus.EventConsumed)
	require.Len(t, consumed, 1)
	assert.Equal(t, id, consumed[0].MessageID)

	seen := c.Seen()
	require.Len(t, seen, 1)
	assert.Equal(t, Note{MessageID: "n-42", Content: "Test weather forecast"}, seen[0])
	assert.Equal(t, "[n-42] Test weather forecast\n", out.String())
}

func TestPublisherSendsToQueue(t *testing.T) {
	rec := qbus.NewRecorder()
	bus := newBus(t, rec)

	p, err := NewPublisher(bus)
	require.NoError(t, err)
	n, err := p.Publish(context.Background(), "Test message to specific queue")
	require.NoError(t, err)
	flush(t, bus)

	assert.NotEmpty(t, n.MessageID)
	assert.Equal(t, uint64(1), p.Sent())
	assert.True(t, rec.Any(qbus.EventPublished, Queue))
	// no consumer bound: the note waits on the queue
	assert.Equal(t, 1, bus.PendingCount(Queue))
	assert.False(t, rec.Any(qbus.EventConsumed, Queue))
}

func TestConsumerRejectsGarbage(t *testing.T) {
	bus := newBus(t, qbus.NewRecorder())

	var out bytes.Buffer
	c := NewConsumer(&out, nil)
	_, err := bus.Subscribe(context.Background(), Queue, c.Handle)
	require.NoError(t, err)

	_, err = bus.Publish(context.Background(), Queue, []byte("not json"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), bus.FailedCount(Queue))
	assert.Empty(t, out.String())
}
