package nats

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/trickstertwo/qbus"
)

// Egress publishes local messages to a subject. Handle is meant to be
// subscribed to the local queue.
type Egress struct {
	conn Conn
	cfg  Config

	published atomic.Uint64
	errors    atomic.Uint64
}

func NewEgress(conn Conn, cfg Config) *Egress {
	return &Egress{conn: conn, cfg: cfg}
}

func (e *Egress) Handle(_ context.Context, msg *qbus.Message) error {
	if err := e.conn.PublishMsg(toNATS(e.cfg.Subject, msg)); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("qbus/nats: publish to %q: %w", e.cfg.Subject, err)
	}
	e.published.Add(1)
	return nil
}

func (e *Egress) Published() uint64 { return e.published.Load() }
func (e *Egress) Errors() uint64    { return e.errors.Load() }
