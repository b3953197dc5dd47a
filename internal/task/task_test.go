package task

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sebas-inf/venice/internal/envelope"
	"github.com/sebas-inf/venice/internal/errors"
	"github.com/sebas-inf/venice/pkg/record"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory store.Writer.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func storeKey(topic string, partition int32, key []byte) string {
	return fmt.Sprintf("%s/%d/%s", topic, partition, key)
}

func (s *memStore) Put(_ context.Context, topic string, partition int32, key, value []byte, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[storeKey(topic, partition, key)] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, topic string, partition int32, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, storeKey(topic, partition, key))
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) get(topic string, partition int32, key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[storeKey(topic, partition, key)]
	return v, ok
}

// memDLQ records published failures.
type memDLQ struct {
	mu      sync.Mutex
	reasons []string
}

func (d *memDLQ) Publish(_ context.Context, _ *record.ConsumerRecord, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	return nil
}

func (d *memDLQ) published() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reasons)
}

func mustCodec(t *testing.T) *envelope.Codec {
	t.Helper()
	codec, err := envelope.NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

func encodeEnvelope(t *testing.T, codec *envelope.Codec, env *envelope.Envelope) []byte {
	t.Helper()
	data, err := codec.Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return data
}

func putRecord(t *testing.T, codec *envelope.Codec, offset, seq int64, key, payload []byte) *record.ConsumerRecord {
	t.Helper()
	return &record.ConsumerRecord{
		Topic:     "orders",
		Partition: 0,
		Offset:    offset,
		Key:       key,
		Value: encodeEnvelope(t, codec, &envelope.Envelope{
			MessageType: envelope.MessageTypePut,
			ProducerID:  "p1",
			Segment:     1,
			Sequence:    seq,
			Payload:     payload,
		}),
	}
}

func TestProcessPutPersists(t *testing.T) {
	codec := mustCodec(t)
	st := newMemStore()
	tk := New(context.Background(), "orders", st, codec, nil, testLogger())

	rec := putRecord(t, codec, 10, 1, []byte("k1"), []byte("v1"))
	if err := tk.Process(rec, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, ok := st.get("orders", 0, []byte("k1"))
	if !ok {
		t.Fatal("record not persisted")
	}
	if string(got) != "v1" {
		t.Errorf("persisted value = %q, want %q", got, "v1")
	}
}

func TestProcessDeleteRemoves(t *testing.T) {
	codec := mustCodec(t)
	st := newMemStore()
	tk := New(context.Background(), "orders", st, codec, nil, testLogger())

	if err := tk.Process(putRecord(t, codec, 10, 1, []byte("k1"), []byte("v1")), nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	del := &record.ConsumerRecord{
		Topic:     "orders",
		Partition: 0,
		Offset:    11,
		Key:       []byte("k1"),
		Value: encodeEnvelope(t, codec, &envelope.Envelope{
			MessageType: envelope.MessageTypeDelete,
			ProducerID:  "p1",
			Segment:     1,
			Sequence:    2,
		}),
	}
	if err := tk.Process(del, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if _, ok := st.get("orders", 0, []byte("k1")); ok {
		t.Error("record still present after delete")
	}
}

func TestProcessSequenceGap(t *testing.T) {
	codec := mustCodec(t)
	tk := New(context.Background(), "orders", newMemStore(), codec, nil, testLogger())

	if err := tk.Process(putRecord(t, codec, 10, 1, []byte("k1"), []byte("v1")), nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// Sequence jumps from 1 to 3 inside the same segment.
	err := tk.Process(putRecord(t, codec, 11, 3, []byte("k2"), []byte("v2")), nil)
	if !stderrors.Is(err, errors.ErrSequenceViolation) {
		t.Fatalf("Process() error = %v, want ErrSequenceViolation", err)
	}

	var procErr *errors.ProcessingError
	if !stderrors.As(err, &procErr) {
		t.Fatal("Process() error is not a ProcessingError")
	}
	if procErr.Offset != 11 {
		t.Errorf("ProcessingError.Offset = %d, want 11", procErr.Offset)
	}
}

func TestProcessSegmentBackwards(t *testing.T) {
	codec := mustCodec(t)
	tk := New(context.Background(), "orders", newMemStore(), codec, nil, testLogger())

	first := &record.ConsumerRecord{
		Topic: "orders", Partition: 0, Offset: 1, Key: []byte("k"),
		Value: encodeEnvelope(t, codec, &envelope.Envelope{
			MessageType: envelope.MessageTypePut,
			ProducerID:  "p1",
			Segment:     3,
			Sequence:    1,
			Payload:     []byte("v"),
		}),
	}
	if err := tk.Process(first, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	stale := &record.ConsumerRecord{
		Topic: "orders", Partition: 0, Offset: 2, Key: []byte("k"),
		Value: encodeEnvelope(t, codec, &envelope.Envelope{
			MessageType: envelope.MessageTypePut,
			ProducerID:  "p1",
			Segment:     2,
			Sequence:    1,
			Payload:     []byte("v"),
		}),
	}
	if err := tk.Process(stale, nil); !stderrors.Is(err, errors.ErrSequenceViolation) {
		t.Errorf("Process() error = %v, want ErrSequenceViolation", err)
	}
}

func TestProcessNewSegmentResetsSequence(t *testing.T) {
	codec := mustCodec(t)
	tk := New(context.Background(), "orders", newMemStore(), codec, nil, testLogger())

	if err := tk.Process(putRecord(t, codec, 1, 5, []byte("k"), []byte("v")), nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// A higher segment may restart the sequence run at any value.
	next := &record.ConsumerRecord{
		Topic: "orders", Partition: 0, Offset: 2, Key: []byte("k"),
		Value: encodeEnvelope(t, codec, &envelope.Envelope{
			MessageType: envelope.MessageTypePut,
			ProducerID:  "p1",
			Segment:     2,
			Sequence:    1,
			Payload:     []byte("v"),
		}),
	}
	if err := tk.Process(next, nil); err != nil {
		t.Errorf("Process() error = %v, want nil for new segment", err)
	}
}

func TestProcessMalformedGoesToDLQ(t *testing.T) {
	codec := mustCodec(t)
	dlq := &memDLQ{}
	tk := New(context.Background(), "orders", newMemStore(), codec, dlq, testLogger())

	rec := &record.ConsumerRecord{Topic: "orders", Partition: 0, Offset: 1, Value: []byte{0xff}}
	err := tk.Process(rec, nil)
	if !stderrors.Is(err, errors.ErrEnvelopeMalformed) {
		t.Fatalf("Process() error = %v, want ErrEnvelopeMalformed", err)
	}
	if got := dlq.published(); got != 1 {
		t.Errorf("DLQ published %d records, want 1", got)
	}
}

func TestLastDrainerErrorClearsOnRead(t *testing.T) {
	tk := New(context.Background(), "orders", newMemStore(), mustCodec(t), nil, testLogger())

	want := stderrors.New("async failure")
	tk.SetLastDrainerError(want)

	if got := tk.LastDrainerError(); !stderrors.Is(got, want) {
		t.Errorf("LastDrainerError() = %v, want %v", got, want)
	}
	if got := tk.LastDrainerError(); got != nil {
		t.Errorf("second LastDrainerError() = %v, want nil", got)
	}
}

func TestResetPartitionClearsValidationState(t *testing.T) {
	codec := mustCodec(t)
	tk := New(context.Background(), "orders", newMemStore(), codec, nil, testLogger())

	if err := tk.Process(putRecord(t, codec, 1, 1, []byte("k"), []byte("v")), nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	tk.ResetPartition(record.PartitionID{Topic: "orders", Partition: 0})

	// After a reset the same segment may restart at any sequence, as a
	// resubscription replays from an older offset.
	if err := tk.Process(putRecord(t, codec, 1, 1, []byte("k"), []byte("v")), nil); err != nil {
		t.Errorf("Process() after reset error = %v, want nil", err)
	}
}
