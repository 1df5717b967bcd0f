package qbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDestination is returned when a publish targets an empty queue name.
	ErrInvalidDestination = errors.New("qbus: invalid destination")
	// ErrAlreadyBound is returned when a queue already has a handler bound.
	ErrAlreadyBound = errors.New("qbus: handler already bound")
	// ErrEmpty signals that a queue has no pending messages.
	ErrEmpty = errors.New("qbus: queue is empty")
	// ErrBusClosed is returned by every operation after Close.
	ErrBusClosed = errors.New("qbus: bus is closed")
	// ErrInvalidHandler is returned when Subscribe is given a nil handler.
	ErrInvalidHandler = errors.New("qbus: handler must not be nil")

	// ErrCodecNotFound is returned when no codec is registered under a name.
	ErrCodecNotFound = errors.New("qbus: codec not registered")
	// ErrInvalidCodec is returned for an unusable codec registration.
	ErrInvalidCodec = errors.New("qbus: invalid codec")
	// ErrObserverPoolShutdownTimeout is returned by Close when observer workers
	// do not finish within the pool shutdown timeout.
	ErrObserverPoolShutdownTimeout = errors.New("qbus: observer pool shutdown timeout")
)

// HandlerError reports a failed handler invocation. It is never returned to a
// publisher; it is surfaced through Bus.Errors, observers and the logger.
type HandlerError struct {
	Queue     string
	MessageID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("qbus: handler failed on queue %q message %s: %v", e.Queue, e.MessageID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
