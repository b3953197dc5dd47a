// Package envelope implements the Avro wire envelope that frames every
// record value on the ingestion topics.
package envelope

import (
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/sebas-inf/venice/internal/errors"
)

// Message types carried by the envelope.
const (
	MessageTypePut     int32 = 0
	MessageTypeDelete  int32 = 1
	MessageTypeControl int32 = 2
)

// Envelope is the decoded representation of one framed record value. The
// producer metadata (producer ID, segment, sequence) drives the downstream
// data-integrity validation, which is why records of one partition must be
// processed in enqueue order.
type Envelope struct {
	MessageType int32
	ProducerID  string
	Segment     int32
	Sequence    int64
	Timestamp   int64
	SchemaID    int32
	Payload     []byte
}

// avroSchema returns the Avro schema for the message envelope.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "MessageEnvelope",
		"namespace": "com.venice.ingestion",
		"fields": [
			{"name": "message_type", "type": "int"},
			{"name": "producer_id", "type": "string"},
			{"name": "segment", "type": "int"},
			{"name": "sequence", "type": "long"},
			{"name": "timestamp", "type": "long"},
			{"name": "schema_id", "type": "int"},
			{"name": "payload", "type": ["null", "bytes"], "default": null}
		]
	}`
}

// Codec encodes and decodes message envelopes.
type Codec struct {
	codec *goavro.Codec
}

// NewCodec creates an envelope codec.
func NewCodec() (*Codec, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create envelope codec: %w", err)
	}
	return &Codec{codec: codec}, nil
}

// Decode parses one binary-encoded envelope.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	native, _, err := c.codec.NativeFromBinary(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrEnvelopeMalformed, err)
	}
	fields, ok := native.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected decoded shape %T", errors.ErrEnvelopeMalformed, native)
	}

	env := &Envelope{
		MessageType: fields["message_type"].(int32),
		ProducerID:  fields["producer_id"].(string),
		Segment:     fields["segment"].(int32),
		Sequence:    fields["sequence"].(int64),
		Timestamp:   fields["timestamp"].(int64),
		SchemaID:    fields["schema_id"].(int32),
	}
	if payload, ok := fields["payload"].(map[string]interface{}); ok {
		if raw, ok := payload["bytes"].([]byte); ok {
			env.Payload = raw
		}
	}
	return env, nil
}

// Encode serializes an envelope to its binary form.
func (c *Codec) Encode(env *Envelope) ([]byte, error) {
	fields := map[string]interface{}{
		"message_type": env.MessageType,
		"producer_id":  env.ProducerID,
		"segment":      env.Segment,
		"sequence":     env.Sequence,
		"timestamp":    env.Timestamp,
		"schema_id":    env.SchemaID,
	}
	if env.Payload != nil {
		fields["payload"] = map[string]interface{}{"bytes": env.Payload}
	} else {
		fields["payload"] = nil
	}

	data, err := c.codec.BinaryFromNative(nil, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}
