package engine

import "errors"

var (
	// ErrExecutionNotFound is returned when no run exists for the given
	// execution id.
	ErrExecutionNotFound = errors.New("execution not found")
)
