package qbus

import (
	"context"
	"sync/atomic"
)

// SendEndpoint is a send handle for one named queue, obtained from Bus.Endpoint.
type SendEndpoint struct {
	bus   *Bus
	queue string
	sent  atomic.Uint64
}

// Queue returns the destination queue name.
func (e *SendEndpoint) Queue() string { return e.queue }

// Send publishes payload to the endpoint's queue and returns the message id.
func (e *SendEndpoint) Send(ctx context.Context, payload []byte, opts ...MessageOption) (string, error) {
	id, err := e.bus.Send(ctx, NewMessage(e.queue, payload, opts...))
	if err != nil {
		return "", err
	}
	e.sent.Add(1)
	return id, nil
}

// SendValue encodes v with the bus codec and sends it under name.
func (e *SendEndpoint) SendValue(ctx context.Context, name string, v any, meta map[string]string) (string, error) {
	id, err := e.bus.PublishValue(ctx, e.queue, name, v, meta)
	if err != nil {
		return "", err
	}
	e.sent.Add(1)
	return id, nil
}

// Sent returns how many messages went through this endpoint.
func (e *SendEndpoint) Sent() uint64 { return e.sent.Load() }
