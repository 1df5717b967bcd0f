// Package amqp bridges a local qbus queue and RabbitMQ (AMQP 0-9-1).
//
// Egress publishes every message of the local queue to an exchange. Ingress
// consumes a RabbitMQ queue in manual-ack mode and sends each delivery into
// the local queue; the delivery is acked once the local enqueue succeeded and
// nacked otherwise.
//
// Message id, name and production time travel both as AMQP properties
// (MessageId, Type, Timestamp) and as headers; metadata is carried as
// "meta:"-prefixed headers.
package amqp
