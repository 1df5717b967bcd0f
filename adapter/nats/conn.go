package nats

import (
	"github.com/nats-io/nats.go"
	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/qbus/internal/wire"
)

// Conn is what the bridge needs from a NATS connection.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	// Subscribe delivers subject's messages to ch and returns an unsubscribe func.
	Subscribe(subject, group string, ch chan *nats.Msg) (func() error, error)
}

// clientConn adapts *nats.Conn to Conn.
type clientConn struct {
	nc *nats.Conn
}

// NewConn wraps an established connection.
func NewConn(nc *nats.Conn) Conn { return clientConn{nc: nc} }

func (c clientConn) PublishMsg(m *nats.Msg) error { return c.nc.PublishMsg(m) }

func (c clientConn) Subscribe(subject, group string, ch chan *nats.Msg) (func() error, error) {
	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = c.nc.ChanQueueSubscribe(subject, group, ch)
	} else {
		sub, err = c.nc.ChanSubscribe(subject, ch)
	}
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func toNATS(subject string, msg *qbus.Message) *nats.Msg {
	h := nats.Header{}
	for k, v := range wire.Headers(msg) {
		h.Set(k, v)
	}
	return &nats.Msg{Subject: subject, Data: msg.Payload(), Header: h}
}

func fromNATS(queue string, m *nats.Msg, fallbackID string) *qbus.Message {
	h := make(map[string]string, len(m.Header))
	for k := range m.Header {
		h[k] = m.Header.Get(k)
	}
	return wire.Message(queue, m.Data, h, fallbackID)
}
