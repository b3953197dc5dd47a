// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/sebas-inf/venice/pkg/record"
)

// Sentinel errors for common conditions.
var (
	ErrServiceNotStarted = errors.New("buffer service is not started")
	ErrServiceStopped    = errors.New("buffer service is stopped")
	ErrAlreadyStarted    = errors.New("buffer service is already started")
	ErrRecordTooLarge    = errors.New("record exceeds queue capacity")
	ErrConsumerClosed    = errors.New("consumer is closed")
	ErrStoreClosed       = errors.New("store is closed")
	ErrConnectionLost    = errors.New("connection lost")
	ErrEnvelopeMalformed = errors.New("malformed message envelope")
	ErrSequenceViolation = errors.New("record sequence violation")
)

// DrainTimeoutError reports a drain barrier whose retry budget ran out while
// records for the partition were still buffered.
type DrainTimeoutError struct {
	PartitionID  record.PartitionID
	DrainerIndex int
	Retries      int
}

func (e *DrainTimeoutError) Error() string {
	return fmt.Sprintf("drain timeout: records still buffered for partition=%s on drainer=%d after %d retries",
		e.PartitionID, e.DrainerIndex, e.Retries)
}

// ProcessingError represents an error while processing one buffered record.
type ProcessingError struct {
	PartitionID record.PartitionID
	Offset      int64
	Err         error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: partition=%s offset=%d: %v",
		e.PartitionID, e.Offset, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.IsRetryable()
	}

	return errors.Is(err, ErrConnectionLost)
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "delete" || e.Operation == "open"
}

// IsRetryable determines if a ProcessingError is retryable.
func (e *ProcessingError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
