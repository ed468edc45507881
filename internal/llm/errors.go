package llm

import (
	"errors"
	"fmt"
)

// Common transport errors
var (
	// ErrEmptyResponse is returned when the model replies with no content.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrMissingModelID is returned when a request carries no model ID.
	ErrMissingModelID = errors.New("missing model ID")

	// ErrRetriesExhausted is returned when a throttled call still fails
	// after the configured number of attempts.
	ErrRetriesExhausted = errors.New("retries exhausted for throttled request")
)

// TransportError wraps errors with additional context about the failed invocation.
type TransportError struct {
	// Op is the operation that failed (e.g., "Converse", "InvokeModel").
	Op string

	// ModelID is the model the request targeted.
	ModelID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.ModelID != "" {
		return fmt.Sprintf("llm: %s failed (model: %s): %v", e.Op, e.ModelID, e.Err)
	}
	return fmt.Sprintf("llm: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped sentinel errors.
func (e *TransportError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
