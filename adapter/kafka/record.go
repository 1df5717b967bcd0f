package kafka

import (
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/qbus/internal/wire"
)

func toRecord(msg *qbus.Message) kafka.Message {
	h := wire.Headers(msg)
	headers := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(msg.ID()),
		Value:   msg.Payload(),
		Headers: headers,
		Time:    msg.ProducedAt(),
	}
}

// fromRecord rebuilds a message for queue. A record without an id header falls
// back to its key, then to topic/partition/offset.
func fromRecord(queue string, r kafka.Message) *qbus.Message {
	h := make(map[string]string, len(r.Headers)+1)
	for _, kh := range r.Headers {
		h[kh.Key] = string(kh.Value)
	}
	if h[wire.FieldProducedAt] == "" && !r.Time.IsZero() {
		h[wire.FieldProducedAt] = fmt.Sprintf("%d", r.Time.UnixNano())
	}

	fallback := string(r.Key)
	if fallback == "" {
		fallback = fmt.Sprintf("%s/%d/%d", r.Topic, r.Partition, r.Offset)
	}
	return wire.Message(queue, r.Value, h, fallback)
}
