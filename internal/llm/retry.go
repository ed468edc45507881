package llm

import (
	"errors"
	"math/rand"
	"time"

	"github.com/aws/smithy-go"
)

// backoffCeiling caps the exponential backoff between throttled attempts.
const backoffCeiling = 30 * time.Second

// throttleCodes are the Bedrock error codes treated as transient.
var throttleCodes = map[string]bool{
	"ThrottlingException":                    true,
	"TooManyRequestsException":               true,
	"ServiceUnavailableException":            true,
	"ModelNotReadyException":                 true,
	"ProvisionedThroughputExceededException": true,
}

// RetryableError marks a transient failure worth retrying.
type RetryableError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	return "retryable error (" + e.Code + "): " + e.Message
}

// IsRetryable reports whether err is a throttling-class failure.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttleCodes[apiErr.ErrorCode()]
	}
	return false
}

// Backoff returns the sleep duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > backoffCeiling {
		base = backoffCeiling
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
