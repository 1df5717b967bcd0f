package redisstream

import "github.com/trickstertwo/qbus/internal/wire"

// Stream entry fields.
const (
	fieldID         = wire.FieldID
	fieldName       = wire.FieldName
	fieldPayload    = wire.FieldPayload    // raw bytes, no base64
	fieldProducedAt = wire.FieldProducedAt // unix ns
	fieldMetaPrefix = wire.MetaPrefix

	fieldOrigStream = "orig_stream"
	fieldOrigID     = "orig_id"
	fieldError      = "error"
)

// Directions.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)
