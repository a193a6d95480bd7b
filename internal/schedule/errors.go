package schedule

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Operations wrap them with a human-readable detail, so
// errors.Is selects the category and Error() carries the reason.
var (
	// ErrValidation - malformed or missing input, rejected before any write
	ErrValidation = errors.New("validation error")

	// ErrInvalidTimeRange - start not before end, or slot off the slot grid
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrPastDateTime - date or instant not in the future
	ErrPastDateTime = errors.New("date is in the past")

	// ErrSlotUnavailable - slot claimed by another booking; refetch slots and retry
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotFound - agent, appointment or rule does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict - transaction timed out or lost a lock/serialization race; safe to retry
	ErrConflict = errors.New("conflict")

	// ErrStore - the rule store could not be reached or failed
	ErrStore = errors.New("store error")
)

const (
	KindValidationError  = "ValidationError"
	KindInvalidTimeRange = "InvalidTimeRange"
	KindPastDateTime     = "PastDateTime"
	KindSlotUnavailable  = "SlotUnavailable"
	KindNotFound         = "NotFound"
	KindConflict         = "Conflict"
	KindStoreError       = "StoreError"
	KindUnknown          = "Unknown"
)

// ErrorKind returns the stable category name of err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSlotUnavailable):
		return KindSlotUnavailable
	case errors.Is(err, ErrInvalidTimeRange):
		return KindInvalidTimeRange
	case errors.Is(err, ErrPastDateTime):
		return KindPastDateTime
	case errors.Is(err, ErrValidation):
		return KindValidationError
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStore):
		return KindStoreError
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrConflict)
}

// StoreFailure wraps a driver error as ErrStore unless it is already categorized.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if ErrorKind(err) != KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: transaction timed out: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

func invalidf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
