package nats

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/xlog"
)

type Stats struct {
	Received  uint64
	Forwarded uint64
	Dropped   uint64
}

// Ingress subscribes to a subject and sends every message into the local queue.
type Ingress struct {
	conn   Conn
	sender qbus.Sender
	cfg    Config
	logger *xlog.Logger

	unsubscribe func() error
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once

	received  atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

func NewIngress(conn Conn, sender qbus.Sender, cfg Config, opts ...Option) *Ingress {
	o := buildOptions(opts)
	return &Ingress{conn: conn, sender: sender, cfg: cfg, logger: o.logger}
}

// Start subscribes and launches the forwarding loop. It runs until Close.
func (in *Ingress) Start(_ context.Context) error {
	ch := make(chan *nats.Msg, max(1, in.cfg.Buffer))
	unsub, err := in.conn.Subscribe(in.cfg.Subject, in.cfg.Group, ch)
	if err != nil {
		return fmt.Errorf("qbus/nats: subscribe %q: %w", in.cfg.Subject, err)
	}
	in.unsubscribe = unsub

	ctx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.loop(ctx, ch)
	}()
	return nil
}

func (in *Ingress) loop(ctx context.Context, ch <-chan *nats.Msg) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			in.forward(ctx, m)
		}
	}
}

func (in *Ingress) forward(ctx context.Context, m *nats.Msg) {
	n := in.received.Add(1)
	msg := fromNATS(in.cfg.Queue, m, in.cfg.Subject+"-"+strconv.FormatUint(n, 10))

	if _, err := in.sender.Send(ctx, msg); err != nil {
		in.dropped.Add(1)
		in.logger.Warn().
			Err(err).
			Str("subject", m.Subject).
			Str("message_id", msg.ID()).
			Msg("qbus/nats: local enqueue failed, message dropped")
		return
	}
	in.forwarded.Add(1)
}

// Close unsubscribes and waits for the loop to return.
func (in *Ingress) Close() error {
	var err error
	in.closeOnce.Do(func() {
		if in.unsubscribe != nil {
			err = in.unsubscribe()
		}
		if in.cancel != nil {
			in.cancel()
		}
		in.wg.Wait()
	})
	return err
}

func (in *Ingress) Stats() Stats {
	return Stats{
		Received:  in.received.Load(),
		Forwarded: in.forwarded.Load(),
		Dropped:   in.dropped.Load(),
	}
}
