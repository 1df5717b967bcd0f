package qbus

import (
	"time"
)

// EventType enumerates internal lifecycle events for the Observer pattern.
type EventType string

const (
	EventStarted        EventType = "started"
	EventStopped        EventType = "stopped"
	EventQueueCreated   EventType = "queue_created"
	EventPublished      EventType = "published"
	EventSubscribed     EventType = "subscribed"
	EventUnsubscribed   EventType = "unsubscribed"
	EventConsumeStart   EventType = "consume_start"
	EventConsumed       EventType = "consumed"
	EventHandlerFailure EventType = "handler_failure"
	EventErrorDropped   EventType = "error_dropped"
)

// Event carries telemetry for observers.
type Event struct {
	Type      EventType
	Queue     string
	MessageID string
	Name      string
	Duration  time.Duration
	Err       error

	// attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // events dropped due to full buffer
	Processed    uint64
	ActiveEvents int // current queue depth
	Workers      int
	BufferSize   int
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Published           uint64
	Consumed            uint64
	Failed              uint64
	Queues              int
	Pending             int
	ErrorsDropped       uint64
	EventsDropped       uint64
	AvgProcessingTimeMs float64
}

// HealthStatus indicates bus health for readiness/liveness probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Running   bool
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
