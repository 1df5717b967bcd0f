package kafka

import (
	"fmt"
	"strings"
	"time"
)

// Directions.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// Config for a Kafka bridge.
type Config struct {
	Brokers []string

	Topic     string
	Queue     string
	Direction string

	// Consumer (ingress)
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// Producer (egress)
	BatchSize    int
	BatchTimeout time.Duration
}

func Defaults() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		Direction:    DirectionOut,
		GroupID:      "qbus",
		MinBytes:     1,
		MaxBytes:     10e6,
		MaxWait:      500 * time.Millisecond,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("config: at least one broker required")
	}
	if c.Topic == "" {
		return fmt.Errorf("config: topic required")
	}
	if c.Queue == "" {
		return fmt.Errorf("config: queue required")
	}
	switch c.Direction {
	case DirectionOut:
		if c.BatchSize < 1 {
			return fmt.Errorf("config: batch_size must be >= 1, got %d", c.BatchSize)
		}
	case DirectionIn:
		if c.GroupID == "" {
			return fmt.Errorf("config: group_id required for ingress")
		}
		if c.MaxBytes < c.MinBytes {
			return fmt.Errorf("config: max_bytes %d below min_bytes %d", c.MaxBytes, c.MinBytes)
		}
	default:
		return fmt.Errorf("config: direction must be %q or %q, got %q", DirectionOut, DirectionIn, c.Direction)
	}
	return nil
}

// ConfigFromMap converts a generic map to Config on top of Defaults.
// brokers may be a []string or a comma-separated string.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	switch v := m["brokers"].(type) {
	case []string:
		if len(v) > 0 {
			c.Brokers = v
		}
	case string:
		if v != "" {
			c.Brokers = strings.Split(v, ",")
		}
	}
	if v, ok := m["topic"].(string); ok {
		c.Topic = v
	}
	if v, ok := m["queue"].(string); ok {
		c.Queue = v
	}
	if v, ok := m["direction"].(string); ok && v != "" {
		c.Direction = v
	}
	if v, ok := m["group_id"].(string); ok && v != "" {
		c.GroupID = v
	}
	if v, ok := m["min_bytes"].(int); ok && v > 0 {
		c.MinBytes = v
	}
	if v, ok := m["max_bytes"].(int); ok && v > 0 {
		c.MaxBytes = v
	}
	if v, ok := m["max_wait"].(time.Duration); ok && v > 0 {
		c.MaxWait = v
	}
	if v, ok := m["batch_size"].(int); ok && v > 0 {
		c.BatchSize = v
	}
	if v, ok := m["batch_timeout"].(time.Duration); ok && v > 0 {
		c.BatchTimeout = v
	}
	return c
}
