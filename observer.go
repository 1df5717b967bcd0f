package qbus

import (
	"slices"
	"sync"

	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits bus events via xlog.
// Handler failures and dropped errors are logged at warn, everything else at debug.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	switch e.Type {
	case EventHandlerFailure, EventErrorDropped:
		o.Logger.Warn().
			Str("type", string(e.Type)).
			Str("queue", e.Queue).
			Str("message_id", e.MessageID).
			Err(e.Err).
			Msg("qbus event")
	default:
		o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("queue", e.Queue).
			Str("message_id", e.MessageID).
			Str("name", e.Name).
			Dur("duration", e.Duration).
			Msg("qbus event")
	}
}

// Recorder is an Observer that keeps every event it sees. Useful in tests and
// for harness-style assertions on what was published and consumed.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	e.observers = nil
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (r *Recorder) Events(types ...EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if len(types) == 0 || slices.Contains(types, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

// Any reports whether an event of type t was recorded for queue ("" matches any queue).
func (r *Recorder) Any(t EventType, queue string) bool {
	for _, e := range r.Events(t) {
		if queue == "" || e.Queue == queue {
			return true
		}
	}
	return false
}
