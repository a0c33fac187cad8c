package provider

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when Generate is called outside the client's
// connection scope. No network traffic happens in that state.
var ErrNotConnected = errors.New("client not connected")

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// InvalidResponseError reports a 2xx response whose body lacks the expected
// completion text. A malformed success is terminal, never retried.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid API response: %s", e.Reason)
}

// RetryExhaustedError is returned when every configured attempt failed.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }
