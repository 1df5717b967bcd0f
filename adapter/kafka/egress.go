package kafka

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/trickstertwo/qbus"
)

// Writer is the part of *kafka.Writer the egress uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Writer = (*kafka.Writer)(nil)

// NewWriter builds a writer for cfg.Topic.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
}

// Egress writes local messages to Kafka. Handle is meant to be subscribed to
// the local queue.
type Egress struct {
	w Writer

	published atomic.Uint64
	errors    atomic.Uint64
}

func NewEgress(w Writer) *Egress {
	return &Egress{w: w}
}

func (e *Egress) Handle(ctx context.Context, msg *qbus.Message) error {
	if err := e.w.WriteMessages(ctx, toRecord(msg)); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("qbus/kafka: write: %w", err)
	}
	e.published.Add(1)
	return nil
}

func (e *Egress) Published() uint64 { return e.published.Load() }
func (e *Egress) Errors() uint64    { return e.errors.Load() }
