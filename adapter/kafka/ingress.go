package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/xlog"
)

// Reader is the part of *kafka.Reader the ingress uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Reader = (*kafka.Reader)(nil)

// NewReader builds a consumer-group reader for cfg.Topic.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
}

type Stats struct {
	Received   uint64
	Forwarded  uint64
	Failed     uint64
	Committed  uint64
	FetchFails uint64
}

// Ingress fetches records and sends them into the local queue, committing
// each offset after the local send succeeded.
type Ingress struct {
	r      Reader
	sender qbus.Sender
	cfg    Config
	logger *xlog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	received   atomic.Uint64
	forwarded  atomic.Uint64
	failed     atomic.Uint64
	committed  atomic.Uint64
	fetchFails atomic.Uint64
}

func NewIngress(r Reader, sender qbus.Sender, cfg Config, opts ...Option) *Ingress {
	o := buildOptions(opts)
	return &Ingress{r: r, sender: sender, cfg: cfg, logger: o.logger}
}

// Start launches the fetch loop. It runs until Close.
func (in *Ingress) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.loop(ctx)
	}()
	return nil
}

func (in *Ingress) loop(ctx context.Context) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		rec, err := in.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			in.fetchFails.Add(1)
			in.logger.Warn().Err(err).Str("topic", in.cfg.Topic).Msg("qbus/kafka: fetch failed")
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 100 * time.Millisecond
		in.forward(ctx, rec)
	}
}

func (in *Ingress) forward(ctx context.Context, rec kafka.Message) {
	in.received.Add(1)
	msg := fromRecord(in.cfg.Queue, rec)

	if _, err := in.sender.Send(ctx, msg); err != nil {
		in.failed.Add(1)
		in.logger.Warn().
			Err(err).
			Str("topic", rec.Topic).
			Str("message_id", msg.ID()).
			Msg("qbus/kafka: local enqueue failed, offset not committed")
		return
	}
	in.forwarded.Add(1)

	if err := in.r.CommitMessages(ctx, rec); err != nil {
		in.logger.Warn().Err(err).Str("message_id", msg.ID()).Msg("qbus/kafka: commit failed")
		return
	}
	in.committed.Add(1)
}

// Close stops the loop and closes the reader.
func (in *Ingress) Close() error {
	var err error
	in.closeOnce.Do(func() {
		if in.cancel != nil {
			in.cancel()
		}
		in.wg.Wait()
		err = in.r.Close()
	})
	return err
}

func (in *Ingress) Stats() Stats {
	return Stats{
		Received:   in.received.Load(),
		Forwarded:  in.forwarded.Load(),
		Failed:     in.failed.Load(),
		Committed:  in.committed.Load(),
		FetchFails: in.fetchFails.Load(),
	}
}
