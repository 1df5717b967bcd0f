package qbus

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

type ctxKey string

const (
	depsCtxKey     ctxKey = "qbus:deps"
	deliveryCtxKey ctxKey = "qbus:delivery"
)

// deps is what every handler context carries from its bus.
type deps struct {
	codec  Codec
	logger *xlog.Logger
	clock  xclock.Clock
}

// InjectAll attaches codec, logger and clock to ctx. The bus does this once
// for the context handed to every handler.
func InjectAll(ctx context.Context, codec Codec, logger *xlog.Logger, clock xclock.Clock) context.Context {
	return context.WithValue(ctx, depsCtxKey, deps{codec: codec, logger: logger, clock: clock})
}

func depsFrom(ctx context.Context) (deps, bool) {
	if ctx == nil {
		return deps{}, false
	}
	d, ok := ctx.Value(depsCtxKey).(deps)
	return d, ok
}

// CodecFromContext retrieves the bus codec from a handler context.
func CodecFromContext(ctx context.Context) (Codec, bool) {
	d, ok := depsFrom(ctx)
	if !ok || d.codec == nil {
		return nil, false
	}
	return d.codec, true
}

// LoggerFromContext retrieves the bus logger from a handler context.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	d, ok := depsFrom(ctx)
	if !ok || d.logger == nil {
		return nil, false
	}
	return d.logger, true
}

// ClockFromContext retrieves the bus clock from a handler context.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	d, ok := depsFrom(ctx)
	if !ok || d.clock == nil {
		return nil, false
	}
	return d.clock, true
}

// DeliveryInfo describes the delivery a handler is currently processing.
type DeliveryInfo struct {
	Queue     string
	MessageID string
	// Pending is the queue depth left behind when this message was dequeued.
	Pending int
}

func withDelivery(ctx context.Context, info DeliveryInfo) context.Context {
	return context.WithValue(ctx, deliveryCtxKey, info)
}

// DeliveryFromContext returns the delivery info for the running handler.
func DeliveryFromContext(ctx context.Context) (DeliveryInfo, bool) {
	if ctx == nil {
		return DeliveryInfo{}, false
	}
	info, ok := ctx.Value(deliveryCtxKey).(DeliveryInfo)
	return info, ok
}
