// Package nats bridges a local qbus queue and a NATS subject.
//
// Egress publishes every message of the local queue to the subject. Ingress
// subscribes to the subject (optionally inside a queue group) and sends each
// message into the local queue. Core NATS has no acknowledgements, so a
// message whose local enqueue fails is counted, logged and dropped.
package nats
