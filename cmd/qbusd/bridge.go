package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/qbus/adapter/amqp"
	"github.com/trickstertwo/qbus/adapter/kafka"
	"github.com/trickstertwo/qbus/adapter/nats"
	"github.com/trickstertwo/qbus/adapter/redisstream"
	"github.com/trickstertwo/qbus/internal/config"
	"github.com/trickstertwo/xlog"
)

// openBridge starts the configured bridge; it returns nil for kind "none".
func openBridge(ctx context.Context, bus *qbus.Bus, b config.Bridge, logger *xlog.Logger) (io.Closer, error) {
	m := b.BridgeMap()

	var (
		br  io.Closer
		err error
	)
	switch b.Kind {
	case "none", "":
		return nil, nil
	case "redis":
		br, err = redisstream.Open(ctx, bus, redisstream.ConfigFromMap(m), redisstream.WithLogger(logger))
	case "amqp":
		br, err = amqp.Open(ctx, bus, amqp.ConfigFromMap(m), amqp.WithLogger(logger))
	case "nats":
		br, err = nats.Open(ctx, bus, nats.ConfigFromMap(m), nats.WithLogger(logger))
	case "kafka":
		br, err = kafka.Open(ctx, bus, kafka.ConfigFromMap(m), kafka.WithLogger(logger))
	default:
		return nil, fmt.Errorf("qbusd: unknown bridge kind %q", b.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("qbusd: open %s bridge: %w", b.Kind, err)
	}

	logger.Info().
		Str("kind", b.Kind).
		Str("direction", b.Direction).
		Str("queue", b.Queue).
		Str("remote", b.Remote).
		Msg("qbusd: bridge open")
	return br, nil
}

func formatUint(n uint64) string { return strconv.FormatUint(n, 10) }
