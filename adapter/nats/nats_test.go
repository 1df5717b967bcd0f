package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/qbus"
)

// fakeConn loops published messages back to subscribers of the same subject.
type fakeConn struct {
	mu         sync.Mutex
	published  []*nats.Msg
	subs       map[string]chan *nats.Msg
	groups     map[string]string
	publishErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{subs: map[string]chan *nats.Msg{}, groups: map[string]string{}}
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, m)
	if ch, ok := f.subs[m.Subject]; ok {
		ch <- m
	}
	return nil
}

func (f *fakeConn) Subscribe(subject, group string, ch chan *nats.Msg) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[subject] = ch
	f.groups[subject] = group
	return func() error {
		f.mu.Lock()
		delete(f.subs, subject)
		f.mu.Unlock()
		return nil
	}, nil
}

func newBus(t *testing.T) *qbus.Bus {
	t.Helper()
	bus, err := qbus.NewBusBuilder().WithSyncDispatch(true).WithAutoStart(true).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus
}

func TestConfig(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{"subject": "orders.*", "queue": "local", "group": "workers", "buffer": 8})
	require.NoError(t, cfg.Validate())
	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, "workers", cfg.Group)
	assert.Equal(t, 8, cfg.Buffer)

	cfg.Direction = "up"
	assert.Error(t, cfg.Validate())
	assert.Error(t, Defaults().Validate())
}

func TestEgressToIngress(t *testing.T) {
	conn := newFakeConn()
	src := newBus(t)
	dst := newBus(t)

	out := Defaults()
	out.Subject = "orders"
	out.Queue = "outbox"
	in := out
	in.Direction = DirectionIn
	in.Queue = "inbox"
	in.Group = "workers"

	var mu sync.Mutex
	var got []*qbus.Message
	_, err := dst.Subscribe(context.Background(), "inbox", func(_ context.Context, msg *qbus.Message) error {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	inBridge, err := attach(context.Background(), dst, conn, in)
	require.NoError(t, err)
	defer inBridge.Close()
	outBridge, err := attach(context.Background(), src, conn, out)
	require.NoError(t, err)
	defer outBridge.Close()
	assert.Equal(t, "workers", conn.groups["orders"])

	id, err := src.PublishValue(context.Background(), "outbox", "OrderPlaced", map[string]string{"sku": "A1"}, map[string]string{"tenant": "acme"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, id, got[0].ID())
	assert.Equal(t, "inbox", got[0].Queue())
	assert.Equal(t, "OrderPlaced", got[0].Name())
	assert.JSONEq(t, `{"sku":"A1"}`, string(got[0].Payload()))
	v, _ := got[0].Header("tenant")
	assert.Equal(t, "acme", v)
	assert.Equal(t, uint64(1), outBridge.Egress().Published())
	assert.Equal(t, uint64(1), inBridge.Ingress().Stats().Forwarded)
}

func TestEgress_Failure(t *testing.T) {
	conn := newFakeConn()
	conn.publishErr = errors.New("nats: connection closed")
	bus := newBus(t)
	cfg := Defaults()
	cfg.Subject, cfg.Queue = "orders", "outbox"

	eg := NewEgress(conn, cfg)
	_, err := bus.Subscribe(context.Background(), "outbox", eg.Handle)
	require.NoError(t, err)
	_, err = bus.Publish(context.Background(), "outbox", []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), bus.FailedCount("outbox"))
	assert.Equal(t, uint64(1), eg.Errors())
}

func TestIngress_DropsWhenBusClosed(t *testing.T) {
	conn := newFakeConn()
	bus, err := qbus.NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Close(context.Background()))

	cfg := Defaults()
	cfg.Subject, cfg.Queue, cfg.Direction = "orders", "inbox", DirectionIn
	in := NewIngress(conn, bus, cfg)
	require.NoError(t, in.Start(context.Background()))
	defer in.Close()

	require.NoError(t, conn.PublishMsg(&nats.Msg{Subject: "orders", Data: []byte("x")}))
	require.Eventually(t, func() bool {
		return in.Stats().Dropped == 1
	}, time.Second, 5*time.Millisecond)
}
