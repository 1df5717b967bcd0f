// Package cloudevents provides a qbus codec that wraps every payload in a
// CloudEvents v1.0 JSON envelope, plus helpers to convert whole qbus messages
// to and from CloudEvents.
//
// Importing the package registers the codec under the name "cloudevents":
//
//	import _ "github.com/trickstertwo/qbus/codec/cloudevents"
//
//	bus, err := qbus.NewBusBuilder().WithCodec("cloudevents").Build()
package cloudevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/trickstertwo/qbus"
)

// Name is the registry name of the codec.
const Name = "cloudevents"

const (
	defaultSource = "qbus"
	queueExt      = "qbusqueue"
)

func init() {
	_ = qbus.RegisterCodec(Name, func() qbus.Codec { return New(defaultSource) })
}

// Codec encodes values as CloudEvents structured-mode JSON.
type Codec struct {
	source string
	now    func() time.Time
	newID  func() string
}

// New returns a codec stamping source on every event it produces.
func New(source string) *Codec {
	if source == "" {
		source = defaultSource
	}
	return &Codec{source: source, now: time.Now, newID: uuid.NewString}
}

func (c *Codec) Name() string { return Name }

// Marshal wraps v as the data of a new event whose type is the Go type name of v.
func (c *Codec) Marshal(v any) ([]byte, error) {
	e := cloudevents.NewEvent()
	e.SetID(c.newID())
	e.SetSource(c.source)
	e.SetType(typeName(v))
	e.SetTime(c.now().UTC())
	if err := e.SetData(cloudevents.ApplicationJSON, v); err != nil {
		return nil, fmt.Errorf("cloudevents: set data: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("cloudevents: %w", err)
	}
	return json.Marshal(e)
}

// Unmarshal reads a structured-mode event and decodes its data into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	var e cloudevents.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("cloudevents: %w", err)
	}
	if err := e.DataAs(v); err != nil {
		return fmt.Errorf("cloudevents: data: %w", err)
	}
	return nil
}

// ToEvent converts a delivered qbus message into an event. The message id,
// name and production time map onto id, type and time; metadata keys that
// are valid extension names become extensions.
func ToEvent(msg *qbus.Message, source string) (*cloudevents.Event, error) {
	if msg == nil {
		return nil, errors.New("cloudevents: nil message")
	}
	if source == "" {
		source = defaultSource
	}

	e := cloudevents.NewEvent()
	e.SetID(msg.ID())
	e.SetSource(source)
	typ := msg.Name()
	if typ == "" {
		typ = "qbus.message"
	}
	e.SetType(typ)
	if t := msg.ProducedAt(); !t.IsZero() {
		e.SetTime(t)
	}
	e.SetExtension(queueExt, msg.Queue())
	for k, v := range msg.Metadata() {
		if validExtension(k) {
			e.SetExtension(k, v)
		}
	}

	payload := msg.Payload()
	var err error
	if json.Valid(payload) {
		err = e.SetData(cloudevents.ApplicationJSON, json.RawMessage(payload))
	} else {
		err = e.SetData("application/octet-stream", payload)
	}
	if err != nil {
		return nil, fmt.Errorf("cloudevents: set data: %w", err)
	}
	return &e, nil
}

// FromEvent builds a message for queue from an event. When queue is empty the
// queue extension written by ToEvent is used.
func FromEvent(e *cloudevents.Event, queue string) (*qbus.Message, error) {
	if e == nil {
		return nil, errors.New("cloudevents: nil event")
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("cloudevents: %w", err)
	}

	meta := map[string]string{}
	for k, v := range e.Extensions() {
		if k == queueExt {
			if queue == "" {
				queue = fmt.Sprint(v)
			}
			continue
		}
		meta[k] = fmt.Sprint(v)
	}
	if queue == "" {
		return nil, qbus.ErrInvalidDestination
	}
	meta["ce_source"] = e.Source()

	opts := []qbus.MessageOption{
		qbus.WithID(e.ID()),
		qbus.WithName(e.Type()),
		qbus.WithMetadata(meta),
	}
	if t := e.Time(); !t.IsZero() {
		opts = append(opts, qbus.WithProducedAt(t))
	}
	return qbus.NewMessage(queue, e.Data(), opts...), nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}

// validExtension follows the CloudEvents attribute naming rule: lower-case
// ASCII letters and digits only.
func validExtension(k string) bool {
	if k == "" || k == queueExt {
		return false
	}
	for _, r := range k {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	switch k {
	case "id", "source", "specversion", "type", "datacontenttype", "dataschema", "subject", "time", "data":
		return false
	}
	return true
}
