package retry

import (
	"errors"
	"fmt"
)

// ErrRetryExhausted is the terminal reason when a request runs out of
// budgeted retries.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// StatusError reports a non-retryable HTTP status (3xx, or 4xx other
// than 429).
type StatusError struct {
	Status int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("non-retryable status %d", e.Status)
}

// exhausted builds the terminal error for a spent retry budget,
// carrying the last observed status or transport error.
func exhausted(attempts, status int, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, attempts, cause)
	}
	return fmt.Errorf("%w after %d attempts: last status %d", ErrRetryExhausted, attempts, status)
}
