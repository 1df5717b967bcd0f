package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Directions.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// Config for a NATS bridge.
type Config struct {
	URL  string
	Name string

	Subject   string
	Queue     string
	Direction string

	// Group is the NATS queue group for ingress; empty subscribes plainly.
	Group string
	// Buffer sizes the channel between the NATS client and the ingress loop.
	Buffer int
}

func Defaults() Config {
	return Config{
		URL:       nats.DefaultURL,
		Name:      "qbus",
		Direction: DirectionOut,
		Buffer:    256,
	}
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("config: url required")
	}
	if c.Subject == "" {
		return fmt.Errorf("config: subject required")
	}
	if c.Queue == "" {
		return fmt.Errorf("config: queue required")
	}
	switch c.Direction {
	case DirectionOut, DirectionIn:
	default:
		return fmt.Errorf("config: direction must be %q or %q, got %q", DirectionOut, DirectionIn, c.Direction)
	}
	if c.Buffer < 1 {
		return fmt.Errorf("config: buffer must be >= 1, got %d", c.Buffer)
	}
	return nil
}

// ConfigFromMap converts a generic map to Config on top of Defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["url"].(string); ok && v != "" {
		c.URL = v
	}
	if v, ok := m["name"].(string); ok && v != "" {
		c.Name = v
	}
	if v, ok := m["subject"].(string); ok {
		c.Subject = v
	}
	if v, ok := m["queue"].(string); ok {
		c.Queue = v
	}
	if v, ok := m["direction"].(string); ok && v != "" {
		c.Direction = v
	}
	if v, ok := m["group"].(string); ok {
		c.Group = v
	}
	if v, ok := m["buffer"].(int); ok && v > 0 {
		c.Buffer = v
	}
	return c
}
