package qbus

import (
	"context"
)

// Handler processes a single message. A returned error is a handler failure:
// it is reported and the message is dropped, never redelivered.
type Handler func(ctx context.Context, msg *Message) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// Subscription represents an active handler binding. Close disposes it.
type Subscription interface {
	Queue() string
	Close() error
}

// Codec is the Strategy for encoding/decoding typed payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Observer receives bus lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Sender is the publishing side of the bus, as seen by bridges and endpoints.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Client is the part of the bus a bridge needs: it sends into local queues
// and subscribes to them.
type Client interface {
	Sender
	Subscribe(ctx context.Context, queue string, handler Handler) (Subscription, error)
}

// API represents the complete qbus surface.
type API interface {
	Sender
	Start()
	Stop()
	Running() bool
	Publish(ctx context.Context, queue string, payload []byte) (string, error)
	PublishValue(ctx context.Context, queue, name string, v any, meta map[string]string) (string, error)
	PublishBatch(ctx context.Context, queue string, events ...PublishEvent) ([]string, error)
	Subscribe(ctx context.Context, queue string, handler Handler) (Subscription, error)
	Endpoint(queue string) (*SendEndpoint, error)
	PublishedCount(queue string) uint64
	ConsumedCount(queue string) uint64
	FailedCount(queue string) uint64
	PendingCount(queue string) int
	Errors() <-chan *HandlerError
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var _ API = (*Bus)(nil)
var _ Client = (*Bus)(nil)
var _ HealthChecker = (*Bus)(nil)
