package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/trickstertwo/qbus"
)

// Bridge owns a NATS connection and one direction of traffic between a local
// queue and a subject.
type Bridge struct {
	nc      *nats.Conn
	egress  *Egress
	sub     qbus.Subscription
	ingress *Ingress

	closeOnce sync.Once
}

// Open connects to NATS and starts the bridge on bus.
func Open(ctx context.Context, bus qbus.Client, cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("qbus/nats: connect to %q: %w", cfg.URL, err)
	}
	br, err := attach(ctx, bus, NewConn(nc), cfg, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	br.nc = nc
	return br, nil
}

func attach(ctx context.Context, bus qbus.Client, conn Conn, cfg Config, opts ...Option) (*Bridge, error) {
	br := &Bridge{}
	switch cfg.Direction {
	case DirectionIn:
		br.ingress = NewIngress(conn, bus, cfg, opts...)
		if err := br.ingress.Start(ctx); err != nil {
			return nil, err
		}
	default:
		br.egress = NewEgress(conn, cfg)
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

// Close unbinds or stops the bridge and drains the connection.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		if b.sub != nil {
			errs = append(errs, b.sub.Close())
		}
		if b.ingress != nil {
			errs = append(errs, b.ingress.Close())
		}
		if b.nc != nil {
			errs = append(errs, b.nc.Drain())
		}
	})
	return errors.Join(errs...)
}
