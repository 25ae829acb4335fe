package inference

import (
	"fmt"
	"time"
)

// AuthenticationError reports a rejected or missing API credential.
// It is never retried.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// RateLimitError reports a provider quota rejection. It is never
// retried; the caller decides when to try again.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s", e.Message)
}

// InvalidParameterError reports a request the provider rejected as
// malformed. It is never retried.
type InvalidParameterError struct {
	Message string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid generation parameters: %s", e.Message)
}

// TransientUnavailableError reports that the provider stayed
// unavailable through every retry and fallback model.
type TransientUnavailableError struct {
	Attempts int
	Err      error
}

func (e *TransientUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientUnavailableError) Unwrap() error { return e.Err }

// modelLoadingError is the provider's "model is warming up" response.
// The suggested wait is untrusted input and is clamped before use.
type modelLoadingError struct {
	Message       string
	EstimatedWait time.Duration
}

func (e *modelLoadingError) Error() string {
	return fmt.Sprintf("model loading: %s (estimated %s)", e.Message, e.EstimatedWait)
}
