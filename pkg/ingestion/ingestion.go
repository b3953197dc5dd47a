// Package ingestion defines the contracts between the buffer-and-drain
// engine and the per-subscription ingestion tasks that consume it.
package ingestion

import (
	"context"

	"github.com/sebas-inf/venice/pkg/record"
)

// Task is the per-subscription collaborator that owns decoding, validation
// and storage writes for one topic. The buffer engine invokes Process
// serially for all records sharing a (topic, partition).
type Task interface {
	// Process validates, decodes and persists one record. It may take
	// arbitrary time and may return an error; the drainer treats a returned
	// error as a per-record failure and keeps running.
	Process(rec *record.ConsumerRecord, produced ProducedRecord) error

	// SetLastDrainerError delivers an asynchronous per-record failure back
	// into the task. Only the most recent error is retained.
	SetLastDrainerError(err error)
}

// ProducedRecord is a one-shot completion handle for the downstream effect
// of processing a single record. Complete is called exactly once by the
// drainer for every record enqueued with a non-nil handle.
type ProducedRecord interface {
	// Complete resolves the handle: nil for success, the processing error
	// otherwise. Calling Complete more than once is a programming error.
	Complete(err error)

	// Wait blocks until the handle is completed or ctx is done, and returns
	// the completion error.
	Wait(ctx context.Context) error
}
