package fetcher

import (
	"errors"
	"fmt"
)

// ErrCancelled marks an outcome abandoned because the batch context was
// cancelled before the work unit finished.
var ErrCancelled = errors.New("fetch cancelled")

// Outcome is the final result of one URL's work unit: either a success
// carrying the response, or a terminal failure carrying the reason and
// the last observed status.
type Outcome struct {
	// URL is the input target.
	URL string

	// Status is the last observed HTTP status, 0 when no response was
	// ever received.
	Status int

	// Body is the raw response body on success.
	Body []byte

	// Value is the decoded body when the content type indicated JSON,
	// nil otherwise.
	Value any

	// Err is nil on success; otherwise the terminal failure reason.
	Err error
}

// Success reports whether the work unit completed successfully.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// cancelled builds the outcome for a work unit unwound by cancellation.
func cancelled(url string, cause error) Outcome {
	outcomesTotal.WithLabelValues("cancelled").Inc()
	return Outcome{
		URL: url,
		Err: fmt.Errorf("%w: %v", ErrCancelled, cause),
	}
}
