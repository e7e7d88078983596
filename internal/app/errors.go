// Package app wires configuration, logging, plugin discovery and the
// runner/bridge pair into one application.
package app

import (
	"errors"
)

// Application errors.
var (
	// ErrShutdownTimeout indicates shutdown timed out.
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
