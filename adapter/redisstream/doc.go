// Package redisstream bridges a local qbus queue and a Redis stream.
//
// Egress subscribes to the local queue and XADDs every message to the stream.
// Ingress reads the stream through a consumer group and sends each entry into
// the local queue, acknowledging it only once the local enqueue succeeded.
//
// Minimal config keys for ConfigFromMap:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - stream: remote stream name (required)
//   - queue: local queue name (required)
//   - direction: "out" or "in" (default "out")
//   - group / consumer: consumer group identity for ingress
//   - batch_size: XREADGROUP COUNT (default 128)
//   - block: XREADGROUP BLOCK duration (default 5s)
//   - dead_letter: stream receiving entries that could not be enqueued
//
// Example:
//
//	br, err := redisstream.Open(ctx, bus, redisstream.ConfigFromMap(map[string]any{
//	    "addr":      "localhost:6379",
//	    "stream":    "orders",
//	    "queue":     "orders-in",
//	    "direction": "in",
//	}))
package redisstream
