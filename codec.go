package qbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// JSONCodec encodes payloads with encoding/json. It is the bus default.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CodecFactory builds a fresh codec for one bus.
type CodecFactory func() Codec

type codecTable struct {
	mu        sync.RWMutex
	factories map[string]CodecFactory
}

var codecs = &codecTable{
	factories: map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	},
}

// RegisterCodec makes a codec available to BusBuilder.WithCodec under name.
// Registering an existing name replaces it.
func RegisterCodec(name string, factory CodecFactory) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidCodec)
	case factory == nil:
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidCodec, name)
	}
	codecs.mu.Lock()
	codecs.factories[name] = factory
	codecs.mu.Unlock()
	return nil
}

// NewCodec builds the codec registered under name.
func NewCodec(name string) (Codec, error) {
	codecs.mu.RLock()
	f, ok := codecs.factories[name]
	codecs.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrCodecNotFound, name, Codecs())
	}
	c := f()
	if c == nil {
		return nil, fmt.Errorf("%w: factory for %q returned nil", ErrInvalidCodec, name)
	}
	return c, nil
}

// Codecs lists the registered codec names in order.
func Codecs() []string {
	codecs.mu.RLock()
	names := make([]string, 0, len(codecs.factories))
	for n := range codecs.factories {
		names = append(names, n)
	}
	codecs.mu.RUnlock()
	sort.Strings(names)
	return names
}

// DecodeCodec unmarshals the message payload into T using c.
func DecodeCodec[T any](c Codec, msg *Message) (T, error) {
	var v T
	if err := c.Unmarshal(msg.payload, &v); err != nil {
		return v, fmt.Errorf("qbus: decode %s: %w", msg.id, err)
	}
	return v, nil
}

// Decode unmarshals the message payload into T with the codec of the bus
// that delivered it, or JSON outside a handler.
func Decode[T any](ctx context.Context, msg *Message) (T, error) {
	if c, ok := CodecFromContext(ctx); ok {
		return DecodeCodec[T](c, msg)
	}
	return DecodeCodec[T](JSONCodec{}, msg)
}
