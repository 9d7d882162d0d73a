package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownProvider is returned by the registry when no provider is
// registered under the requested name.
var ErrUnknownProvider = errors.New("unknown provider")

// Error is a classified provider failure. Transient errors (rate limits,
// transient network failures, 5xx responses) are eligible for retry;
// permanent errors (invalid model name, bad request) fail the node on the
// first attempt without consuming retry budget.
type Error struct {
	Provider  string
	Code      string
	Message   string
	Transient bool
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// NewTransientError wraps a retryable failure.
func NewTransientError(providerName, code, message string, cause error) *Error {
	return &Error{Provider: providerName, Code: code, Message: message, Transient: true, Err: cause}
}

// NewPermanentError wraps a non-retryable failure.
func NewPermanentError(providerName, code, message string, cause error) *Error {
	return &Error{Provider: providerName, Code: code, Message: message, Transient: false, Err: cause}
}

// IsTransient reports whether err is (or wraps) a retryable provider error.
// Context cancellation is never transient: retrying a cancelled call cannot
// succeed.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}
