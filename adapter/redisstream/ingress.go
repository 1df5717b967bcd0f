package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/xlog"
)

// Stats is a snapshot of ingress counters.
type Stats struct {
	Received     uint64
	Forwarded    uint64
	Failed       uint64
	DeadLettered uint64
	ReadErrors   uint64
}

// Ingress reads a stream through a consumer group and sends every entry into
// the local queue. An entry is XACKed only after the local send succeeded;
// otherwise it goes to the dead-letter stream (then acked) or stays pending.
type Ingress struct {
	client redis.Cmdable
	sender qbus.Sender
	cfg    Config
	logger *xlog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	received     atomic.Uint64
	forwarded    atomic.Uint64
	failed       atomic.Uint64
	deadLettered atomic.Uint64
	readErrors   atomic.Uint64
}

func NewIngress(client redis.Cmdable, sender qbus.Sender, cfg Config, opts ...Option) *Ingress {
	o := buildOptions(opts)
	return &Ingress{client: client, sender: sender, cfg: cfg, logger: o.logger}
}

// Start creates the consumer group when configured to and launches the
// polling loop (and the pending-entry claim loop when ClaimMinIdle is set).
// ctx bounds the setup only; the loops run until Close.
func (in *Ingress) Start(ctx context.Context) error {
	if in.cfg.AutoCreate {
		err := in.client.XGroupCreateMkStream(ctx, in.cfg.Stream, in.cfg.Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("redisstream: create group: %w", err)
		}
	}

	inner, cancel := context.WithCancel(context.Background())
	in.cancel = cancel

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.pollLoop(inner)
	}()

	if in.cfg.ClaimMinIdle > 0 && in.cfg.ClaimInterval > 0 {
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			in.claimLoop(inner)
		}()
	}
	return nil
}

func (in *Ingress) pollLoop(ctx context.Context) {
	args := &redis.XReadGroupArgs{
		Group:    in.cfg.Group,
		Consumer: in.cfg.Consumer,
		Streams:  []string{in.cfg.Stream, ">"},
		Count:    int64(max(1, in.cfg.BatchSize)),
		Block:    in.cfg.Block,
	}

	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := in.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				// block timeout
				backoff = 100 * time.Millisecond
				continue
			}

			in.readErrors.Add(1)
			in.logger.Warn().Err(err).Str("stream", in.cfg.Stream).Msg("redisstream: read failed")
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, stream := range res {
			for _, entry := range stream.Messages {
				in.forward(ctx, entry)
			}
		}
	}
}

// forward sends one entry into the local queue and settles it on the stream.
func (in *Ingress) forward(ctx context.Context, entry redis.XMessage) {
	in.received.Add(1)
	msg := decodeEntry(in.cfg.Queue, entry.ID, entry.Values)

	if _, err := in.sender.Send(ctx, msg); err != nil {
		in.failed.Add(1)
		in.logger.Warn().
			Err(err).
			Str("stream", in.cfg.Stream).
			Str("entry", entry.ID).
			Msg("redisstream: local enqueue failed")
		in.reject(ctx, entry, msg, err)
		return
	}

	in.forwarded.Add(1)
	in.ack(ctx, entry.ID)
}

func (in *Ingress) ack(ctx context.Context, id string) {
	if err := in.client.XAck(ctx, in.cfg.Stream, in.cfg.Group, id).Err(); err != nil {
		in.logger.Warn().Err(err).Str("entry", id).Msg("redisstream: ack failed")
		return
	}
	if in.cfg.AutoDeleteOnAck {
		_ = in.client.XDel(ctx, in.cfg.Stream, id).Err()
	}
}

// reject writes entry to the dead-letter stream and acks it. Without a
// dead-letter stream the entry stays pending for the claim loop.
func (in *Ingress) reject(ctx context.Context, entry redis.XMessage, msg *qbus.Message, reason error) {
	dl := in.cfg.DeadLetter
	if dl == "" {
		return
	}
	vals := encodeValues(msg)
	vals[fieldOrigStream] = in.cfg.Stream
	vals[fieldOrigID] = entry.ID
	vals[fieldError] = reason.Error()

	if err := in.client.XAdd(ctx, &redis.XAddArgs{Stream: dl, ID: "*", Values: vals}).Err(); err != nil {
		in.logger.Warn().Err(err).Str("dead_letter", dl).Msg("redisstream: dead-letter write failed")
		return
	}
	in.deadLettered.Add(1)
	in.ack(ctx, entry.ID)
}

// claimLoop takes over entries left pending by crashed consumers and forwards them.
func (in *Ingress) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(in.cfg.ClaimInterval)
	defer ticker.Stop()

	batch := int64(max(1, in.cfg.ClaimBatch))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := in.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: in.cfg.Stream,
			Group:  in.cfg.Group,
			Start:  "-",
			End:    "+",
			Count:  batch,
			Idle:   in.cfg.ClaimMinIdle,
		}).Result()
		if err != nil || len(pending) == 0 {
			continue
		}

		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
		}
		claimed, err := in.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   in.cfg.Stream,
			Group:    in.cfg.Group,
			Consumer: in.cfg.Consumer,
			MinIdle:  in.cfg.ClaimMinIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			continue
		}
		for _, entry := range claimed {
			in.forward(ctx, entry)
		}
	}
}

// Close stops the loops and waits for them. A blocked XREADGROUP returns
// after at most Config.Block.
func (in *Ingress) Close() error {
	in.closeOnce.Do(func() {
		if in.cancel != nil {
			in.cancel()
		}
		in.wg.Wait()
	})
	return nil
}

func (in *Ingress) Stats() Stats {
	return Stats{
		Received:     in.received.Load(),
		Forwarded:    in.forwarded.Load(),
		Failed:       in.failed.Load(),
		DeadLettered: in.deadLettered.Load(),
		ReadErrors:   in.readErrors.Load(),
	}
}
