package resilience

import (
	"context"
	"errors"
)

// TransientError wraps an error that is safe to retry with a fresh attempt
// (navigation faults, navigation timeouts, session launch failures).
type TransientError struct {
	Err  error
	Step string // pipeline step that failed, e.g. "search", "vendor_navigation"
}

func (e *TransientError) Error() string {
	if e.Step == "" {
		return e.Err.Error()
	}
	return e.Step + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient, tagged with the failing step.
func NewTransientError(err error, step string) *TransientError {
	return &TransientError{Err: err, Step: step}
}

// IsTransient reports whether err (or any error in its chain) is a
// TransientError. A cancelled context is never transient, even when the
// fault was tagged as such.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}
