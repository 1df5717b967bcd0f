package redisstream

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/qbus"
)

// Bridge owns a Redis connection and one direction of traffic between a local
// queue and a stream.
type Bridge struct {
	cfg     Config
	client  *redis.Client
	egress  *Egress
	sub     qbus.Subscription
	ingress *Ingress

	closeOnce sync.Once
}

// Open dials Redis and starts the bridge on bus.
func Open(ctx context.Context, bus qbus.Client, cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	br, err := attach(ctx, bus, client, cfg, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return br, nil
}

func attach(ctx context.Context, bus qbus.Client, client *redis.Client, cfg Config, opts ...Option) (*Bridge, error) {
	br := &Bridge{cfg: cfg, client: client}
	switch cfg.Direction {
	case DirectionIn:
		br.ingress = NewIngress(client, bus, cfg, opts...)
		if err := br.ingress.Start(ctx); err != nil {
			return nil, err
		}
	default:
		br.egress = NewEgress(client, cfg)
		sub, err := bus.Subscribe(ctx, cfg.Queue, br.egress.Handle)
		if err != nil {
			return nil, err
		}
		br.sub = sub
	}
	return br, nil
}

// Egress returns the egress side, nil for an inbound bridge.
func (b *Bridge) Egress() *Egress { return b.egress }

// Ingress returns the ingress side, nil for an outbound bridge.
func (b *Bridge) Ingress() *Ingress { return b.ingress }

// Close unbinds or stops the bridge and closes the Redis connection.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		if b.sub != nil {
			errs = append(errs, b.sub.Close())
		}
		if b.ingress != nil {
			errs = append(errs, b.ingress.Close())
		}
		errs = append(errs, b.client.Close())
	})
	return errors.Join(errs...)
}
