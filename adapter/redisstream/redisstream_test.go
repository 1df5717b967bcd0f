package redisstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/qbus"
)

// newRedis starts an in-memory Redis and returns a client for it.
func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newBus(t *testing.T) *qbus.Bus {
	t.Helper()
	bus, err := qbus.NewBusBuilder().WithSyncDispatch(true).WithAutoStart(true).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus
}

func testConfig(mr *miniredis.Miniredis, direction string) Config {
	cfg := Defaults()
	cfg.Addr = mr.Addr()
	cfg.Stream = "orders"
	cfg.Queue = "orders-local"
	cfg.Direction = direction
	cfg.Group = "g"
	cfg.Consumer = "c1"
	cfg.Block = 50 * time.Millisecond
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate(), "stream and queue are required")

	cfg.Stream, cfg.Queue = "s", "q"
	assert.NoError(t, cfg.Validate())

	cfg.Direction = "sideways"
	assert.Error(t, cfg.Validate())

	cfg.Direction = DirectionIn
	cfg.Block = 0
	assert.Error(t, cfg.Validate())
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"addr":           "redis:6379",
		"stream":         "s",
		"queue":          "q",
		"direction":      "in",
		"group":          "payments",
		"batch_size":     256,
		"block":          "2s",
		"claim_min_idle": time.Minute,
		"dead_letter":    "s-dlq",
	})
	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, DirectionIn, cfg.Direction)
	assert.Equal(t, "payments", cfg.Group)
	assert.Equal(t, 256, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Block)
	assert.Equal(t, time.Minute, cfg.ClaimMinIdle)
	assert.Equal(t, "s-dlq", cfg.DeadLetter)
	assert.NotEmpty(t, cfg.Consumer)
}

func TestEntry_RoundTrip(t *testing.T) {
	at := time.Unix(0, 1700000000000000001)
	msg := qbus.NewMessage("q", []byte("payload"),
		qbus.WithID("m-1"),
		qbus.WithName("Evt"),
		qbus.WithProducedAt(at),
		qbus.WithMetadata(map[string]string{"k": "v"}),
	)

	vals := encodeValues(msg)
	// values come back from Redis as strings
	wireVals := map[string]any{}
	for k, v := range vals {
		wireVals[k] = asString(v)
	}

	back := decodeEntry("local", "1-0", wireVals)
	assert.Equal(t, "local", back.Queue())
	assert.Equal(t, "m-1", back.ID())
	assert.Equal(t, "Evt", back.Name())
	assert.True(t, at.Equal(back.ProducedAt()))
	assert.Equal(t, "payload", string(back.Payload()))
	assert.Equal(t, map[string]string{"k": "v"}, back.Metadata())

	foreign := decodeEntry("local", "7-0", map[string]any{"payload": "x"})
	assert.Equal(t, "7-0", foreign.ID())
}

func TestEgress_ForwardsLocalQueue(t *testing.T) {
	mr, client := newRedis(t)
	bus := newBus(t)
	cfg := testConfig(mr, DirectionOut)

	br, err := attach(context.Background(), bus, client, cfg)
	require.NoError(t, err)
	defer br.Close()

	_, err = bus.PublishValue(context.Background(), cfg.Queue, "OrderPlaced", map[string]int{"n": 1}, map[string]string{"tenant": "acme"})
	require.NoError(t, err)

	entries, err := client.XRange(context.Background(), cfg.Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "OrderPlaced", entries[0].Values[fieldName])
	assert.Equal(t, `{"n":1}`, entries[0].Values[fieldPayload])
	assert.Equal(t, "acme", entries[0].Values[fieldMetaPrefix+"tenant"])
	assert.Equal(t, uint64(1), br.Egress().Published())
	assert.Equal(t, uint64(1), bus.ConsumedCount(cfg.Queue))
}

func TestEgress_FailureIsLocalHandlerFailure(t *testing.T) {
	mr, _ := newRedis(t)
	bus := newBus(t)
	cfg := testConfig(mr, DirectionOut)

	// nothing listens on port 1
	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer dead.Close()
	eg := NewEgress(dead, cfg)
	_, err := bus.Subscribe(context.Background(), cfg.Queue, eg.Handle)
	require.NoError(t, err)

	_, err = bus.Publish(context.Background(), cfg.Queue, []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), bus.FailedCount(cfg.Queue))
	assert.Equal(t, uint64(1), eg.Errors())
}

func TestIngress_DeliversAndAcks(t *testing.T) {
	mr, client := newRedis(t)
	bus := newBus(t)
	cfg := testConfig(mr, DirectionIn)

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(context.Background(), cfg.Queue, func(_ context.Context, msg *qbus.Message) error {
		mu.Lock()
		got = append(got, string(msg.Payload()))
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	br, err := attach(context.Background(), bus, client, cfg)
	require.NoError(t, err)
	defer br.Close()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
			Stream: cfg.Stream,
			Values: map[string]any{fieldPayload: p, fieldName: "Evt"},
		}).Err())
	}

	require.Eventually(t, func() bool {
		return br.Ingress().Stats().Forwarded == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	mu.Unlock()

	pending, err := client.XPending(context.Background(), cfg.Stream, cfg.Group).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestIngress_FailedEnqueueGoesToDeadLetter(t *testing.T) {
	mr, client := newRedis(t)
	cfg := testConfig(mr, DirectionIn)
	cfg.DeadLetter = "orders-dlq"

	bus, err := qbus.NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Close(context.Background()))

	in := NewIngress(client, bus, cfg)
	require.NoError(t, in.Start(context.Background()))
	defer in.Close()

	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: cfg.Stream,
		Values: map[string]any{fieldPayload: "lost"},
	}).Err())

	require.Eventually(t, func() bool {
		return in.Stats().DeadLettered == 1
	}, 2*time.Second, 10*time.Millisecond)

	dl, err := client.XRange(context.Background(), "orders-dlq", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dl, 1)
	assert.Equal(t, "lost", dl[0].Values[fieldPayload])
	assert.Equal(t, cfg.Stream, dl[0].Values[fieldOrigStream])
	assert.Contains(t, dl[0].Values[fieldError], "closed")
	assert.Equal(t, uint64(1), in.Stats().Failed)
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), newBus(t), Defaults())
	assert.Error(t, err)
}

func TestOpen_Outbound(t *testing.T) {
	mr, _ := newRedis(t)
	bus := newBus(t)

	br, err := Open(context.Background(), bus, testConfig(mr, DirectionOut))
	require.NoError(t, err)
	require.NotNil(t, br.Egress())
	assert.Nil(t, br.Ingress())
	require.NoError(t, br.Close())
	require.NoError(t, br.Close())
}

func TestIngress_ClaimsEntriesOfDeadConsumer(t *testing.T) {
	mr, client := newRedis(t)
	bus := newBus(t)
	ctx := context.Background()

	cfg := testConfig(mr, DirectionIn)
	cfg.ClaimMinIdle = time.Millisecond
	cfg.ClaimInterval = 20 * time.Millisecond

	require.NoError(t, client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err())
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: cfg.Stream,
		Values: map[string]any{fieldPayload: "orphan", fieldID: "m-1"},
	}).Err())

	// a consumer that reads and dies before acking
	read, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    cfg.Group,
		Consumer: "c0",
		Streams:  []string{cfg.Stream, ">"},
		Count:    1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, read[0].Messages, 1)

	var got []string
	var mu sync.Mutex
	_, err = bus.Subscribe(ctx, cfg.Queue, func(_ context.Context, msg *qbus.Message) error {
		mu.Lock()
		got = append(got, msg.ID())
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	in := NewIngress(client, bus, cfg)
	require.NoError(t, in.Start(ctx))
	defer in.Close()

	require.Eventually(t, func() bool {
		return in.Stats().Forwarded == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"m-1"}, got)
	mu.Unlock()

	pending, err := client.XPending(ctx, cfg.Stream, cfg.Group).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
