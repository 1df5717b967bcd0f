package amqp

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/qbus/internal/wire"
)

// publishing maps a qbus message onto an AMQP publishing.
func publishing(msg *qbus.Message, persistent bool) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range wire.Headers(msg) {
		headers[k] = v
	}

	p := amqp.Publishing{
		Headers:   headers,
		Body:      msg.Payload(),
		MessageId: msg.ID(),
		Type:      msg.Name(),
		Timestamp: msg.ProducedAt(),
	}
	if persistent {
		p.DeliveryMode = amqp.Persistent
	}
	return p
}

// fromDelivery rebuilds a message for queue from a delivery. AMQP properties
// fill in for headers a foreign producer did not set.
func fromDelivery(queue string, d amqp.Delivery) *qbus.Message {
	h := make(map[string]string, len(d.Headers)+2)
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprintf("%v", v)
		}
	}
	if h[wire.FieldName] == "" && d.Type != "" {
		h[wire.FieldName] = d.Type
	}
	if h[wire.FieldProducedAt] == "" && !d.Timestamp.IsZero() {
		h[wire.FieldProducedAt] = fmt.Sprintf("%d", d.Timestamp.UnixNano())
	}

	fallback := d.MessageId
	if fallback == "" {
		fallback = fmt.Sprintf("%s-%d", d.ConsumerTag, d.DeliveryTag)
	}
	return wire.Message(queue, d.Body, h, fallback)
}
