package amqp

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/trickstertwo/qbus"
)

// Egress publishes local messages to RabbitMQ. Handle is meant to be
// subscribed to the local queue.
type Egress struct {
	ch  Channel
	cfg Config

	published atomic.Uint64
	errors    atomic.Uint64
}

func NewEgress(ch Channel, cfg Config) *Egress {
	return &Egress{ch: ch, cfg: cfg}
}

// Handle publishes msg. A failed publish is a handler failure on the local
// queue; the message is not retried.
func (e *Egress) Handle(ctx context.Context, msg *qbus.Message) error {
	err := e.ch.PublishWithContext(ctx,
		e.cfg.Exchange,
		e.cfg.routingKey(),
		false, // mandatory
		false, // immediate
		publishing(msg, e.cfg.Durable),
	)
	if err != nil {
		e.errors.Add(1)
		return fmt.Errorf("qbus/amqp: publish: %w", err)
	}
	e.published.Add(1)
	return nil
}

func (e *Egress) Published() uint64 { return e.published.Load() }
func (e *Egress) Errors() uint64    { return e.errors.Load() }
