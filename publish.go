package qbus

import "context"

// PublishEvent describes a single event in a batch publish call.
type PublishEvent struct {
	Name    string
	Payload any
	Meta    map[string]string
}

// PublishBatch encodes every event and enqueues them on queue as one
// contiguous run: no other publish interleaves inside the batch.
// Nothing is enqueued if any event fails to encode.
func (b *Bus) PublishBatch(_ context.Context, queue string, events ...PublishEvent) ([]string, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if queue == "" {
		return nil, ErrInvalidDestination
	}
	if len(events) == 0 {
		return nil, nil
	}

	now := b.clock.Now()
	msgs := make([]*Message, len(events))
	ids := make([]string, len(events))
	for i := range events {
		data, err := b.codec.Marshal(events[i].Payload)
		if err != nil {
			return nil, err
		}
		ids[i] = b.newID()
		msgs[i] = NewMessage(queue, data,
			WithName(events[i].Name),
			WithMetadata(events[i].Meta),
		).stamped(ids[i], now)
	}

	b.metrics.publishCount.Add(uint64(len(msgs)))
	for _, m := range msgs {
		b.notifyAsync(Event{Type: EventPublished, Queue: queue, MessageID: m.id, Name: m.name})
	}
	b.dispatcher.RouteBatch(queue, msgs)
	return ids, nil
}
