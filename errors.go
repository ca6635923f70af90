package kiku

import (
	"errors"
	"fmt"
)

// Error represents an error from the Kiku REST API with the HTTP status code
// and the server's error message. TraceID is the request's correlation id
// when one was issued, for support diagnostics.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	TraceID    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("kiku: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsConflict returns true if the error is a 409.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 409
	}
	return false
}

// ---------------------------------------------------------------------------
// Streaming transport failures
// ---------------------------------------------------------------------------

// TransportError is a network-level failure opening the answer stream,
// surfaced after the retry budget is exhausted. It is the retryable failure
// class: callers may offer a retry affordance for it.
type TransportError struct {
	// Attempts is the number of connection attempts made.
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kiku: stream transport failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response to a stream request. Only 5xx statuses
// are transient; a StatusError is surfaced either immediately (4xx) or after
// retries are exhausted (5xx).
type StatusError struct {
	Status  int
	Body    string
	TraceID string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kiku: stream request failed with status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the status indicates a transient server failure.
func (e *StatusError) Retryable() bool { return e.Status >= 500 }

// ErrStreamAborted reports that an in-flight stream was cut off after it had
// begun — a mid-stream timeout or connection loss. It is never silently
// retried: partial state already exists and the protocol offers no
// resumption, so a retry must restart the whole stream under a new trace id.
var ErrStreamAborted = errors.New("kiku: stream aborted mid-flight")

// IsRetryable reports whether err belongs to the failure class for which a
// retry affordance makes sense: network failures and 5xx statuses. Protocol
// violations, 4xx statuses, and aborted streams are not retryable.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
