package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sebas-inf/venice/pkg/record"
)

func TestDrainTimeoutError(t *testing.T) {
	err := &DrainTimeoutError{
		PartitionID:  record.PartitionID{Topic: "orders", Partition: 3},
		DrainerIndex: 1,
		Retries:      1000,
	}

	msg := err.Error()
	for _, want := range []string{"orders-3", "drainer=1", "1000"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want it to contain %q", msg, want)
		}
	}

	var target *DrainTimeoutError
	wrapped := fmt.Errorf("barrier failed: %w", err)
	if !stderrors.As(wrapped, &target) {
		t.Error("errors.As() failed to unwrap DrainTimeoutError")
	}
}

func TestProcessingErrorUnwrap(t *testing.T) {
	cause := ErrSequenceViolation
	err := &ProcessingError{
		PartitionID: record.PartitionID{Topic: "t", Partition: 0},
		Offset:      42,
		Err:         cause,
	}

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is() failed to see through ProcessingError")
	}
	if !strings.Contains(err.Error(), "offset=42") {
		t.Errorf("Error() = %q, want offset in message", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection lost", ErrConnectionLost, true},
		{"wrapped connection lost", fmt.Errorf("consume: %w", ErrConnectionLost), true},
		{"retryable storage write", &StorageError{Operation: "write", Err: stderrors.New("io")}, true},
		{"non-retryable storage read", &StorageError{Operation: "read", Err: stderrors.New("io")}, false},
		{"record too large", ErrRecordTooLarge, false},
		{
			"processing wrapping retryable storage",
			&ProcessingError{Err: &StorageError{Operation: "write", Err: stderrors.New("io")}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
