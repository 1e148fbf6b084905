package retry

import (
	"context"
	"errors"
	"fmt"
)

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	// Err is the underlying error.
	Err error

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %v (permanent)", e.Context, e.Err)
	}
	return fmt.Sprintf("%v (permanent)", e.Err)
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that no policy retries it.
// Returns nil if err is nil.
func Permanent(err error, context string) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err, Context: context}
}

// nonRetryable is implemented by errors that carry their own retry decision,
// such as interrupt requests raised by nodes.
type nonRetryable interface {
	NonRetryable() bool
}

// IsRetryable reports whether err may be retried by a policy.
// Permanent errors, context cancellation, and errors that declare themselves
// non-retryable are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var nr nonRetryable
	if errors.As(err, &nr) && nr.NonRetryable() {
		return false
	}

	return true
}
