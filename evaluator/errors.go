package evaluator

import "fmt"

// Error is a node-specific evaluation failure. It is contained by the
// engine: it fails the node and its transitive dependents, never the run's
// goroutines. Details carries machine readable context (missing paths,
// provider codes) for the caller-facing error record.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// newError constructs an Error with formatted message.
func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
