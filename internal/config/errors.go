package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrUnknownSetting indicates the setting path doesn't exist.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrInvalidValue indicates a value could not be parsed for its setting.
	ErrInvalidValue = errors.New("invalid value")

	// ErrValidationFailed is matched by every ValidationError.
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationError describes a validation failure for a setting.
type ValidationError struct {
	// Path is the setting path that failed validation.
	Path string
	// Rule is the constraint that failed.
	Rule string
	// Value is the invalid value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: value %v fails %q", e.Path, e.Value, e.Rule)
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
