// Package kafka bridges a local qbus queue and a Kafka topic.
//
// Egress writes every message of the local queue to the topic, keyed by
// message id. Ingress fetches from the topic inside a consumer group and sends
// each record into the local queue; the offset is committed once the local
// enqueue succeeded. A record whose enqueue failed is not committed.
package kafka
