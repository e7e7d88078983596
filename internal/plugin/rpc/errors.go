package rpc

import (
	"errors"
	"fmt"

	"github.com/dshills/plughost/internal/plugin"
)

// Bridge errors.
var (
	// ErrProtocol is matched by every ProtocolError.
	ErrProtocol = errors.New("protocol error")

	// ErrClosed is returned when the bridge or the runner has shut down.
	ErrClosed = errors.New("channel closed")

	// ErrTimeout is returned when a call exceeds the bridge call timeout.
	ErrTimeout = errors.New("call timed out")

	// ErrDesynchronized is returned by a bridge that abandoned a call after
	// sending it.
	ErrDesynchronized = errors.New("bridge desynchronized by an abandoned call")

	// ErrUnexpectedResponse is returned for a response of the wrong variant,
	// ID or index.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("runner already started")
)

// ProtocolError is returned when the exchange with the runner breaks down.
type ProtocolError struct {
	Op  string // command kind
	Got string // response kind, when a response was received
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Got != "" {
		return fmt.Sprintf("rpc %s: got %s: %v", e.Op, e.Got, e.Err)
	}
	return fmt.Sprintf("rpc %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// RuntimeError is a plugin fault reported by the runner.
type RuntimeError struct {
	Index   int
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("plugin %d: %s", e.Index, e.Message)
}

// Is reports whether target is plugin.ErrRuntime.
func (e *RuntimeError) Is(target error) bool {
	return target == plugin.ErrRuntime
}
