package envelope

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/sebas-inf/venice/internal/errors"
)

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	env := &Envelope{
		MessageType: MessageTypePut,
		ProducerID:  "producer-1",
		Segment:     2,
		Sequence:    17,
		Timestamp:   1720000000000,
		SchemaID:    4,
		Payload:     []byte("value-bytes"),
	}

	data, err := codec.Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if decoded.MessageType != env.MessageType {
		t.Errorf("MessageType = %d, want %d", decoded.MessageType, env.MessageType)
	}
	if decoded.ProducerID != env.ProducerID {
		t.Errorf("ProducerID = %q, want %q", decoded.ProducerID, env.ProducerID)
	}
	if decoded.Segment != env.Segment {
		t.Errorf("Segment = %d, want %d", decoded.Segment, env.Segment)
	}
	if decoded.Sequence != env.Sequence {
		t.Errorf("Sequence = %d, want %d", decoded.Sequence, env.Sequence)
	}
	if decoded.SchemaID != env.SchemaID {
		t.Errorf("SchemaID = %d, want %d", decoded.SchemaID, env.SchemaID)
	}
	if !bytes.Equal(decoded.Payload, env.Payload) {
		t.Errorf("Payload = %v, want %v", decoded.Payload, env.Payload)
	}
}

func TestCodecNullPayload(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	env := &Envelope{
		MessageType: MessageTypeDelete,
		ProducerID:  "producer-1",
		Sequence:    1,
	}

	data, err := codec.Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Payload != nil {
		t.Errorf("Payload = %v, want nil", decoded.Payload)
	}
}

func TestCodecDecodeMalformed(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	_, err = codec.Decode([]byte{0xff})
	if !stderrors.Is(err, errors.ErrEnvelopeMalformed) {
		t.Errorf("Decode() error = %v, want ErrEnvelopeMalformed", err)
	}
}
