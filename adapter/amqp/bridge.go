package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trickstertwo/qbus"
)

// Channel is the part of *amqp.Channel the bridge uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Bridge owns an AMQP connection and one direction of traffic between a local
// queue and RabbitMQ.
type Bridge struct {
	conn    *amqp.Connection
	ch      Channel
	egress  *Egress
	sub     qbus.Subscription
	ingress *Ingress

	closeOnce sync.Once
}

// Open dials RabbitMQ and starts the bridge on bus.
func Open(ctx context.Context, bus qbus.Client, cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("qbus/amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("qbus/amqp: open channel: %w", err)
	}

	br, err := attach(ctx, bus, ch, cfg, opts...)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	br.conn = conn
	return br, nil
}

func attach(ctx context.Context, bus qbus.Client, ch Channel, cfg Config, opts ...Option) (*Bridge, error) {
	br := &Bridge{ch: ch}
	switch cfg.Direction {
	case DirectionIn:
		br.ingress = NewIngress(ch, bus, cfg, opts...)
		if err := br.ingress.Start(ctx); err != nil {
			return nil, err
		}
	default:
		br.egress = NewEgress(ch, cfg)
		sub, err := bus.Subscribe(ctx, cfg.Queue, br.egress.Handle)
		if err != nil {
			return nil, err
		}
		br.sub = sub
	}
	return br, nil
}

func (b *Bridge) Egress() *Egress   { return b.egress }
func (b *Bridge) Ingress() *Ingress { return b.ingress }

// Close unbinds or stops the bridge, then tears down channel and connection.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		if b.sub != nil {
			errs = append(errs, b.sub.Close())
		}
		if b.ingress != nil {
			errs = append(errs, b.ingress.Close())
		}
		if err := b.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("qbus/amqp: close channel: %w", err))
		}
		if b.conn != nil {
			if err := b.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("qbus/amqp: close connection: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
