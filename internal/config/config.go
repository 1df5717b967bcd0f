// Package config loads qbusd settings from an optional YAML file and QBUS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Bus struct {
		SyncDispatch    bool          `mapstructure:"sync_dispatch"`
		Codec           string        `mapstructure:"codec" validate:"oneof=json cloudevents"`
		ErrorBuffer     int           `mapstructure:"error_buffer" validate:"gte=0"`
		ObserverWorkers int           `mapstructure:"observer_workers" validate:"gte=1"`
		ObserverBuffer  int           `mapstructure:"observer_buffer" validate:"gte=1"`
		HandlerTimeout  time.Duration `mapstructure:"handler_timeout" validate:"gte=0"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	} `mapstructure:"bus"`

	Log struct {
		Level   string `mapstructure:"level" validate:"oneof=debug info warn error"`
		Console bool   `mapstructure:"console"`
	} `mapstructure:"log"`

	Bridge Bridge `mapstructure:"bridge"`
}

// Bridge selects and configures the optional broker bridge.
type Bridge struct {
	Kind      string `mapstructure:"kind" validate:"oneof=none redis amqp nats kafka"`
	Direction string `mapstructure:"direction" validate:"oneof=in out"`
	Queue     string `mapstructure:"queue" validate:"required_unless=Kind none"`
	// Remote is the stream, routing key / remote queue, subject or topic.
	Remote   string `mapstructure:"remote" validate:"required_unless=Kind none"`
	URL      string `mapstructure:"url"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.sync_dispatch", false)
	v.SetDefault("bus.codec", "json")
	v.SetDefault("bus.error_buffer", 256)
	v.SetDefault("bus.observer_workers", 4)
	v.SetDefault("bus.observer_buffer", 1024)
	v.SetDefault("bus.handler_timeout", time.Duration(0))
	v.SetDefault("bus.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("bridge.kind", "none")
	v.SetDefault("bridge.direction", "out")
	v.SetDefault("bridge.queue", "")
	v.SetDefault("bridge.remote", "")
	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.group", "")
	v.SetDefault("bridge.consumer", "")
}

// Load reads "qbus.yaml" (or .yml/.json/.toml) from the given directories, then
// applies QBUS_* environment overrides (QBUS_BUS_ERROR_BUFFER, QBUS_BRIDGE_KIND, ...).
// A missing config file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("qbus")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("QBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}
	return decode(v)
}

// LoadFile reads exactly one config file plus environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("QBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &c, nil
}

// BridgeMap renders the bridge section as the generic map the adapters'
// ConfigFromMap helpers accept.
func (b Bridge) BridgeMap() map[string]any {
	m := map[string]any{
		"queue":     b.Queue,
		"direction": b.Direction,
	}
	switch b.Kind {
	case "redis":
		m["stream"] = b.Remote
		m["addr"] = b.URL
		m["group"] = b.Group
		m["consumer"] = b.Consumer
	case "amqp":
		m["url"] = b.URL
		m["remote_queue"] = b.Remote
		m["consumer_tag"] = b.Consumer
	case "nats":
		m["url"] = b.URL
		m["subject"] = b.Remote
		m["group"] = b.Group
		m["name"] = b.Consumer
	case "kafka":
		m["brokers"] = b.URL
		m["topic"] = b.Remote
		m["group_id"] = b.Group
	}
	return m
}
