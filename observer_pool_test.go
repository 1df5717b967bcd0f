package qbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverPool_DeliversToEveryObserver(t *testing.T) {
	op := NewObserverPool(2, 16)
	defer func() { _ = op.Close(time.Second) }()

	a, b := NewRecorder(), NewRecorder()
	for i := 0; i < 5; i++ {
		op.Notify(Event{Type: EventPublished, Queue: "q"}, []Observer{a, b})
	}
	require.NoError(t, op.Flush(context.Background()))

	assert.Len(t, a.Events(EventPublished), 5)
	assert.Len(t, b.Events(EventPublished), 5)
	assert.Equal(t, uint64(5), op.Stats().Processed)
}

func TestObserverPool_PanickingObserverIsContained(t *testing.T) {
	op := NewObserverPool(1, 4)
	defer func() { _ = op.Close(time.Second) }()

	rec := NewRecorder()
	boom := ObserverFunc(func(Event) { panic("observer") })
	op.Notify(Event{Type: EventStarted}, []Observer{boom, rec})
	op.Notify(Event{Type: EventStopped}, []Observer{boom, rec})
	require.NoError(t, op.Flush(context.Background()))

	assert.Len(t, rec.Events(), 2)
}

func TestObserverPool_DropsWhenFull(t *testing.T) {
	op := NewObserverPool(1, 1)

	release := make(chan struct{})
	var once sync.Once
	blocker := ObserverFunc(func(Event) { once.Do(func() { <-release }) })

	// the first event occupies the worker, the second fills the buffer
	op.Notify(Event{Type: EventPublished}, []Observer{blocker})
	require.Eventually(t, func() bool { return op.Stats().ActiveEvents == 0 }, time.Second, time.Millisecond)
	op.Notify(Event{Type: EventPublished}, []Observer{blocker})
	op.Notify(Event{Type: EventPublished}, []Observer{blocker})

	assert.Equal(t, uint64(1), op.Stats().Dropped)
	close(release)
	require.NoError(t, op.Flush(context.Background()))
	require.NoError(t, op.Close(time.Second))
	assert.Equal(t, uint64(2), op.Stats().Processed)
}

func TestObserverPool_CloseIsIdempotentAndStopsIntake(t *testing.T) {
	op := NewObserverPool(0, 0)
	st := op.Stats()
	assert.Equal(t, 4, st.Workers)
	assert.Equal(t, 1024, st.BufferSize)

	require.NoError(t, op.Close(time.Second))
	require.NoError(t, op.Close(time.Second))

	rec := NewRecorder()
	op.Notify(Event{Type: EventStarted}, []Observer{rec})
	require.NoError(t, op.Flush(context.Background()))
	assert.Empty(t, rec.Events())
}

func TestObserverPool_CloseTimesOut(t *testing.T) {
	op := NewObserverPool(1, 1)
	release := make(chan struct{})
	defer close(release)

	op.Notify(Event{Type: EventPublished}, []Observer{ObserverFunc(func(Event) { <-release })})
	require.Eventually(t, func() bool { return op.Stats().ActiveEvents == 0 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, op.Close(10*time.Millisecond), ErrObserverPoolShutdownTimeout)
}
