package amqp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/xlog"
)

// Stats is a snapshot of ingress counters.
type Stats struct {
	Received  uint64
	Forwarded uint64
	Nacked    uint64
}

// Ingress consumes a RabbitMQ queue and sends every delivery into the local
// queue. Deliveries are acked after the local send and nacked when it fails.
type Ingress struct {
	ch     Channel
	sender qbus.Sender
	cfg    Config
	logger *xlog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	received  atomic.Uint64
	forwarded atomic.Uint64
	nacked    atomic.Uint64
}

func NewIngress(ch Channel, sender qbus.Sender, cfg Config, opts ...Option) *Ingress {
	o := buildOptions(opts)
	return &Ingress{ch: ch, sender: sender, cfg: cfg, logger: o.logger}
}

// Start declares the remote queue, binds it when an exchange is configured
// and begins consuming. Consumption runs until Close or until the broker
// closes the delivery channel.
func (in *Ingress) Start(_ context.Context) error {
	if in.cfg.Prefetch > 0 {
		if err := in.ch.Qos(in.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("qbus/amqp: set qos: %w", err)
		}
	}

	q, err := in.ch.QueueDeclare(in.cfg.RemoteQueue, in.cfg.Durable, in.cfg.AutoDelete, false, false, nil)
	if err != nil {
		return fmt.Errorf("qbus/amqp: declare queue %q: %w", in.cfg.RemoteQueue, err)
	}
	if in.cfg.Exchange != "" {
		if err := in.ch.ExchangeDeclare(in.cfg.Exchange, in.cfg.ExchangeType, in.cfg.Durable, false, false, false, nil); err != nil {
			return fmt.Errorf("qbus/amqp: declare exchange %q: %w", in.cfg.Exchange, err)
		}
		if err := in.ch.QueueBind(q.Name, in.cfg.routingKey(), in.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("qbus/amqp: bind queue %q: %w", q.Name, err)
		}
	}

	deliveries, err := in.ch.Consume(q.Name, in.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("qbus/amqp: consume %q: %w", q.Name, err)
	}

	inner, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.consumeLoop(inner, deliveries)
	}()
	return nil
}

func (in *Ingress) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			in.forward(ctx, d)
		}
	}
}

func (in *Ingress) forward(ctx context.Context, d amqp.Delivery) {
	in.received.Add(1)
	msg := fromDelivery(in.cfg.Queue, d)

	if _, err := in.sender.Send(ctx, msg); err != nil {
		in.nacked.Add(1)
		in.logger.Warn().
			Err(err).
			Str("remote_queue", in.cfg.RemoteQueue).
			Str("message_id", msg.ID()).
			Msg("qbus/amqp: local enqueue failed")
		if nerr := d.Nack(false, in.cfg.RequeueOnNack); nerr != nil {
			in.logger.Warn().Err(nerr).Msg("qbus/amqp: nack failed")
		}
		return
	}

	in.forwarded.Add(1)
	if err := d.Ack(false); err != nil {
		in.logger.Warn().Err(err).Str("message_id", msg.ID()).Msg("qbus/amqp: ack failed")
	}
}

// Close stops consuming and waits for the loop to return.
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
		Received:  in.received.Load(),
		Forwarded: in.forwarded.Load(),
		Nacked:    in.nacked.Load(),
	}
}
