package redisstream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trickstertwo/qbus"
	"github.com/trickstertwo/qbus/internal/wire"
)

// encodeValues flattens msg into XADD field values.
func encodeValues(msg *qbus.Message) map[string]any {
	meta := msg.Metadata()
	vals := make(map[string]any, 4+len(meta))

	if id := msg.ID(); id != "" {
		vals[fieldID] = id
	}
	vals[fieldName] = msg.Name()
	vals[fieldPayload] = msg.Payload()
	vals[fieldProducedAt] = msg.ProducedAt().UnixNano()
	for k, v := range meta {
		vals[fieldMetaPrefix+k] = v
	}
	return vals
}

// decodeEntry rebuilds a message for queue from a stream entry. The entry id
// is used when the producer did not write one.
func decodeEntry(queue, entryID string, vals map[string]any) *qbus.Message {
	h := make(map[string]string, len(vals))
	var payload []byte
	for k, v := range vals {
		switch {
		case k == fieldPayload:
			switch p := v.(type) {
			case []byte:
				payload = p
			case string:
				payload = []byte(p)
			}
		case k == fieldProducedAt:
			if ns, ok := toInt64(v); ok {
				h[k] = strconv.FormatInt(ns, 10)
			}
		case k == fieldID, k == fieldName, strings.HasPrefix(k, fieldMetaPrefix):
			h[k] = asString(v)
		}
	}
	return wire.Message(queue, payload, h, entryID)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		return wire.ParseNanos(n)
	case []byte:
		return wire.ParseNanos(string(n))
	}
	return 0, false
}
