// Package demo is the sample workload qbusd runs: a Note
// producer that sends through a SendEndpoint and a consumer that prints
// "[<id>] <content>" for every note on its queue.
package demo

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/xlog"
)

// Queue is the queue the demo producer and consumer share.
const Queue = "my-queue"

// NoteName is the message name notes are published under.
const NoteName = "Note"

type Note struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// Consumer prints every note it receives.
type Consumer struct {
	out    io.Writer
	logger *xlog.Logger

	mu   sync.Mutex
	seen []Note
}

func NewConsumer(out io.Writer, logger *xlog.Logger) *Consumer {
	if logger == nil {
		logger = xlog.Default()
	}
	return &Consumer{out: out, logger: logger}
}

// Handle is the qbus handler for Queue.
func (c *Consumer) Handle(ctx context.Context, msg *qbus.Message) error {
	n, err := qbus.Decode[Note](ctx, msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.out, "[%s] %s\n", n.MessageID, n.Content); err != nil {
		return err
	}
	c.logger.Debug().Str("message_id", n.MessageID).Str("queue", msg.Queue()).Msg("note consumed")

	c.mu.Lock()
	c.seen = append(c.seen, n)
	c.mu.Unlock()
	return nil
}

// Seen returns the notes handled so far.
func (c *Consumer) Seen() []Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Note(nil), c.seen...)
}

// Publisher sends notes to Queue.
type Publisher struct {
	ep *qbus.SendEndpoint
}

func NewPublisher(bus *qbus.Bus) (*Publisher, error) {
	ep, err := bus.Endpoint(Queue)
	if err != nil {
		return nil, err
	}
	return &Publisher{ep: ep}, nil
}

// Publish sends content as a new note with a fresh id and returns that note.
func (p *Publisher) Publish(ctx context.Context, content string) (Note, error) {
	n := Note{MessageID: uuid.NewString(), Content: content}
	if _, err := p.ep.SendValue(ctx, NoteName, n, nil); err != nil {
		return Note{}, err
	}
	return n, nil
}

// Sent returns how many notes went out through this publisher.
func (p *Publisher) Sent() uint64 { return p.ep.Sent() }
