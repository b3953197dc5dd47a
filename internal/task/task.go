// Package task implements the per-subscription ingestion task that decodes,
// validates and persists buffered records.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sebas-inf/venice/internal/envelope"
	"github.com/sebas-inf/venice/internal/errors"
	"github.com/sebas-inf/venice/internal/store"
	"github.com/sebas-inf/venice/pkg/ingestion"
	"github.com/sebas-inf/venice/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ ingestion.Task = (*StoreIngestionTask)(nil)

// FailedRecordPublisher routes poisoned records out of the ingestion path,
// typically to a dead letter topic.
type FailedRecordPublisher interface {
	Publish(ctx context.Context, rec *record.ConsumerRecord, reason string) error
}

// divState tracks the last accepted (segment, sequence) per producer. The
// drainer serializes all records of one partition, so advancing this state
// record by record is what makes the sequence check sound.
type divState struct {
	segment  int32
	sequence int64
}

// StoreIngestionTask ingests one topic: it decodes the Avro envelope of
// each record, runs data-integrity validation on the producer sequence, and
// persists the payload into the embedded store. Drainers invoke Process
// concurrently for different partitions but serially within one partition.
type StoreIngestionTask struct {
	topic  string
	store  store.Writer
	codec  *envelope.Codec
	dlq    FailedRecordPublisher
	logger *slog.Logger
	ctx    context.Context

	mu      sync.Mutex
	div     map[record.PartitionID]map[string]divState
	lastErr error
}

// New creates an ingestion task for topic. dlq may be nil.
func New(ctx context.Context, topic string, st store.Writer, codec *envelope.Codec, dlq FailedRecordPublisher, logger *slog.Logger) *StoreIngestionTask {
	return &StoreIngestionTask{
		topic:  topic,
		store:  st,
		codec:  codec,
		dlq:    dlq,
		logger: logger.With("topic", topic),
		ctx:    ctx,
		div:    make(map[record.PartitionID]map[string]divState),
	}
}

// Process decodes, validates and persists one record.
func (t *StoreIngestionTask) Process(rec *record.ConsumerRecord, _ ingestion.ProducedRecord) error {
	env, err := t.codec.Decode(rec.Value)
	if err != nil {
		t.publishFailed(rec, err.Error())
		return &errors.ProcessingError{PartitionID: rec.PartitionID(), Offset: rec.Offset, Err: err}
	}

	if err := t.validateSequence(rec.PartitionID(), env); err != nil {
		t.publishFailed(rec, err.Error())
		return &errors.ProcessingError{PartitionID: rec.PartitionID(), Offset: rec.Offset, Err: err}
	}

	switch env.MessageType {
	case envelope.MessageTypePut:
		err = t.store.Put(t.ctx, rec.Topic, rec.Partition, rec.Key, env.Payload, rec.Offset)
	case envelope.MessageTypeDelete:
		err = t.store.Delete(t.ctx, rec.Topic, rec.Partition, rec.Key)
	case envelope.MessageTypeControl:
		// Control messages only advance the producer sequence state.
	default:
		err = fmt.Errorf("%w: unknown message type %d", errors.ErrEnvelopeMalformed, env.MessageType)
	}
	if err != nil {
		return &errors.ProcessingError{PartitionID: rec.PartitionID(), Offset: rec.Offset, Err: err}
	}
	return nil
}

// validateSequence enforces the per-producer segment/sequence contract: a
// later record of the same segment must carry the next sequence number, and
// segments never go backwards.
func (t *StoreIngestionTask) validateSequence(p record.PartitionID, env *envelope.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	producers, ok := t.div[p]
	if !ok {
		producers = make(map[string]divState)
		t.div[p] = producers
	}

	st, seen := producers[env.ProducerID]
	switch {
	case !seen || env.Segment > st.segment:
		// First record of a producer or of a new segment starts a fresh
		// sequence run.
	case env.Segment < st.segment:
		return fmt.Errorf("%w: producer %s segment went backwards (%d after %d)",
			errors.ErrSequenceViolation, env.ProducerID, env.Segment, st.segment)
	case env.Sequence != st.sequence+1:
		return fmt.Errorf("%w: producer %s segment %d expected sequence %d, got %d",
			errors.ErrSequenceViolation, env.ProducerID, env.Segment, st.sequence+1, env.Sequence)
	}

	producers[env.ProducerID] = divState{segment: env.Segment, sequence: env.Sequence}
	return nil
}

// ResetPartition drops the validation state of one partition. Callers do
// this after draining the partition, before resubscribing at a new offset.
func (t *StoreIngestionTask) ResetPartition(p record.PartitionID) {
	t.mu.Lock()
	delete(t.div, p)
	t.mu.Unlock()
}

// SetLastDrainerError records an asynchronous per-record failure delivered
// by a drainer. Only the most recent error is retained.
func (t *StoreIngestionTask) SetLastDrainerError(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

// LastDrainerError returns the most recent asynchronous failure, clearing
// it. The poller checks this before committing offsets.
func (t *StoreIngestionTask) LastDrainerError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.lastErr
	t.lastErr = nil
	return err
}

func (t *StoreIngestionTask) publishFailed(rec *record.ConsumerRecord, reason string) {
	if t.dlq == nil {
		return
	}
	if err := t.dlq.Publish(t.ctx, rec, reason); err != nil {
		t.logger.Error("failed to publish record to DLQ",
			"partition", rec.Partition, "offset", rec.Offset, "error", err)
	}
}
