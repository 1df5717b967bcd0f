// Command qbusd runs an in-process qbus with the demo note consumer on
// "my-queue", an optional broker bridge and a single demo publish.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trickstertwo/qbus"
	_ "github.com/trickstertwo/qbus/codec/cloudevents"
	"github.com/trickstertwo/qbus/internal/config"
	"github.com/trickstertwo/qbus/internal/demo"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default: ./qbus.yaml if present)")
	content := flag.String("say", "Hello from qbusd", "content of the demo note sent at startup")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
	} else {
		cfg, err = config.Load(".", "/etc/qbus")
	}
	if err != nil {
		xlog.Default().Error().Err(err).Msg("qbusd: load config")
		os.Exit(1)
	}

	minLevel := xlog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		minLevel = xlog.LevelDebug
	case "warn":
		minLevel = xlog.LevelWarn
	case "error":
		minLevel = xlog.LevelError
	}
	logger := zerolog.Use(zerolog.Config{
		MinLevel:          minLevel,
		Console:           cfg.Log.Console,
		ConsoleTimeFormat: time.RFC3339,
	}).With(xlog.Str("app", "qbusd"))

	if err := run(cfg, logger, *content); err != nil {
		logger.Error().Err(err).Msg("qbusd: exit")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *xlog.Logger, content string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := qbus.NewBusBuilder().
		WithLogger(logger).
		WithCodec(cfg.Bus.Codec).
		WithSyncDispatch(cfg.Bus.SyncDispatch).
		WithErrorBuffer(cfg.Bus.ErrorBuffer).
		WithObserverPool(cfg.Bus.ObserverWorkers, cfg.Bus.ObserverBuffer).
		WithHandlerTimeout(cfg.Bus.HandlerTimeout).
		WithMiddleware(qbus.LoggingMiddleware(logger)).
		Build()
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Bus.ShutdownTimeout)
		defer cancel()
		if err := bus.Close(sctx); err != nil {
			logger.Warn().Err(err).Msg("qbusd: close")
		}
	}()

	consumer := demo.NewConsumer(os.Stdout, logger)
	if _, err := bus.Subscribe(ctx, demo.Queue, consumer.Handle); err != nil {
		return err
	}

	br, err := openBridge(ctx, bus, cfg.Bridge, logger)
	if err != nil {
		return err
	}
	if br != nil {
		defer func() {
			if err := br.Close(); err != nil {
				logger.Warn().Err(err).Msg("qbusd: close bridge")
			}
		}()
	}

	bus.Start()

	go drainErrors(ctx, bus, logger)

	pub, err := demo.NewPublisher(bus)
	if err != nil {
		return err
	}
	if _, err := pub.Publish(ctx, content); err != nil {
		return err
	}

	logger.Info().Str("bridge", cfg.Bridge.Kind).Msg("qbusd running; press Ctrl+C to exit")
	<-ctx.Done()

	m := bus.GetMetrics()
	logger.Info().
		Str("published", formatUint(m.Published)).
		Str("consumed", formatUint(m.Consumed)).
		Str("failed", formatUint(m.Failed)).
		Msg("qbusd: shutting down")
	return nil
}

// drainErrors keeps the handler error channel from filling up.
func drainErrors(ctx context.Context, bus *qbus.Bus, logger *xlog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case herr := <-bus.Errors():
			logger.Debug().Str("queue", herr.Queue).Str("message_id", herr.MessageID).Err(herr.Err).Msg("qbusd: handler error")
		}
	}
}
