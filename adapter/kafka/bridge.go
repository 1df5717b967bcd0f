package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/trickstertwo/qbus"
)

// Bridge is one direction of traffic between a local queue and a topic.
type Bridge struct {
	writer  Writer
	egress  *Egress
	sub     qbus.Subscription
	ingress *Ingress

	closeOnce sync.Once
}

// Open builds the Kafka writer or reader for cfg and starts the bridge on bus.
// kafka-go connects lazily, so broker problems surface on first use.
func Open(ctx context.Context, bus qbus.Client, cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Direction == DirectionIn {
		return attachIngress(ctx, bus, NewReader(cfg), cfg, opts...)
	}
	return attachEgress(ctx, bus, NewWriter(cfg), cfg)
}

func attachEgress(ctx context.Context, bus qbus.Client, w Writer, cfg Config) (*Bridge, error) {
	br := &Bridge{writer: w, egress: NewEgress(w)}
	sub, err := bus.Subscribe(ctx, cfg.Queue, br.egress.Handle)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	br.sub = sub
	return br, nil
}

func attachIngress(ctx context.Context, bus qbus.Client, r Reader, cfg Config, opts ...Option) (*Bridge, error) {
	br := &Bridge{ingress: NewIngress(r, bus, cfg, opts...)}
	if err := br.ingress.Start(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return br, nil
}

func (b *Bridge) Egress() *Egress   { return b.egress }
func (b *Bridge) Ingress() *Ingress { return b.ingress }

// Close unbinds the egress and flushes the writer, or stops the ingress.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		if b.sub != nil {
			errs = append(errs, b.sub.Close())
		}
		if b.writer != nil {
			errs = append(errs, b.writer.Close())
		}
		if b.ingress != nil {
			errs = append(errs, b.ingress.Close())
		}
	})
	return errors.Join(errs...)
}
