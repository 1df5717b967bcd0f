package qbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// TimeoutMiddleware bounds handler processing time. The handler runs on the
// delivery goroutine with a deadline on its ctx; a call that returns after the
// deadline fails with context.DeadlineExceeded whatever it returned. Handlers
// that ignore ctx still hold the queue until they return.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next Handler) Handler { return next }
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			err := next(tctx, msg)
			if errors.Is(tctx.Err(), context.DeadlineExceeded) {
				return tctx.Err()
			}
			return err
		}
	}
}

// RecoveryMiddleware converts handler panics into errors.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// LoggingMiddleware logs every handler call at debug level.
func LoggingMiddleware(l *xlog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			clock, ok := ClockFromContext(ctx)
			if !ok {
				clock = xclock.Default()
			}
			start := clock.Now()
			err := next(ctx, msg)
			l.Debug().
				Str("queue", msg.Queue()).
				Str("id", msg.ID()).
				Str("name", msg.Name()).
				Dur("dur", clock.Since(start)).
				Err(err).
				Msg("qbus: handler done")
			return err
		}
	}
}

// Chain composes middlewares around a handler; the first middleware is outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic recovered: %w", err)
	}
	return fmt.Errorf("panic recovered: %v", r)
}
