package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when an upstream keeps answering 429 after
	// every allowed attempt.
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable marks a failure to reach the document store. It is
	// fatal for a harvest run and for a read request.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrNoUnits is returned when a source enumerates nothing to harvest.
	ErrNoUnits = errors.New("upstream enumeration returned no units")
)

// ValidationError reports a caller-supplied parameter that cannot be used.
// Its message is returned to the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newNotIntegerError(field string) *ValidationError {
	return &ValidationError{Field: field, Message: field + " must be an integer"}
}

// UpstreamFetchError is a failed call to a source. StatusCode is zero when the
// request never produced a response.
type UpstreamFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}
