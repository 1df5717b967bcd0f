package redisstream

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/qbus"
)

// Egress forwards local messages to a Redis stream with XADD.
// Handle is meant to be subscribed to the local queue.
type Egress struct {
	client redis.Cmdable
	cfg    Config

	published atomic.Uint64
	errors    atomic.Uint64
}

func NewEgress(client redis.Cmdable, cfg Config) *Egress {
	return &Egress{client: client, cfg: cfg}
}

// Handle appends msg to the stream. A failed XADD is a handler failure on the
// local queue; the message is not retried.
func (e *Egress) Handle(ctx context.Context, msg *qbus.Message) error {
	args := &redis.XAddArgs{
		Stream: e.cfg.Stream,
		ID:     "*",
		Values: encodeValues(msg),
	}
	// approximate trimming keeps the stream bounded
	if e.cfg.MaxLenApprox > 0 {
		args.MaxLen = e.cfg.MaxLenApprox
		args.Approx = true
	}

	if err := e.client.XAdd(ctx, args).Err(); err != nil {
		e.errors.Add(1)
		return err
	}
	e.published.Add(1)
	return nil
}

// Published returns how many messages reached the stream.
func (e *Egress) Published() uint64 { return e.published.Load() }

// Errors returns how many XADD calls failed.
func (e *Egress) Errors() uint64 { return e.errors.Load() }
