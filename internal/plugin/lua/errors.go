package lua

import (
	"errors"
	"strings"
)

// Errors for Lua compilation and execution.
var (
	// ErrStateClosed is returned when operating on a closed VM.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a call exceeds its execution timeout.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrCompile is matched by every CompileError.
	ErrCompile = errors.New("compile error")

	// ErrNoScripts is returned when a plugin directory holds no script files.
	ErrNoScripts = errors.New("no script files")

	// ErrRuntime is matched by every RuntimeError.
	ErrRuntime = errors.New("runtime error")

	// ErrNilUnit is returned when instantiating without a compiled unit.
	ErrNilUnit = errors.New("unit is nil")
)

// CompileError is returned when a plugin's scripts cannot be compiled.
type CompileError struct {
	Dir         string
	Diagnostics Diagnostics
	Err         error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile ")
	b.WriteString(e.Dir)
	if e.Err != nil && e.Err != ErrCompile {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for _, d := range e.Diagnostics.Errors() {
		b.WriteString("\n  ")
		b.WriteString(d.String())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCompile.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}

// RuntimeError is returned when a script faults, an entry point is missing,
// or a value cannot cross the host boundary.
type RuntimeError struct {
	Function string
	Message  string
	Err      error
}

func (e *RuntimeError) Error() string {
	if e.Function == "" {
		return "lua: " + e.Message
	}
	return "lua: " + e.Function + ": " + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRuntime.
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntime
}
