package plugin

import (
	"errors"
	"fmt"

	plua "github.com/dshills/plughost/internal/plugin/lua"
)

// Plugin host errors.
var (
	// ErrManifest is matched by every ManifestError.
	ErrManifest = errors.New("invalid manifest")

	// ErrManifestNotFound is returned when a plugin directory has no manifest file.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrAmbiguousManifest is returned when a plugin directory has more than one manifest file.
	ErrAmbiguousManifest = errors.New("more than one manifest file")

	// ErrMissingField is returned when a required manifest field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrFieldType is returned when a manifest field holds a value of the wrong type.
	ErrFieldType = errors.New("wrong field type")

	// ErrCompile is matched by every script compile failure.
	ErrCompile = plua.ErrCompile

	// ErrRuntime is matched by every script runtime failure.
	ErrRuntime = plua.ErrRuntime

	// ErrIndex is matched by every IndexError.
	ErrIndex = errors.New("plugin index out of range")

	// ErrRootNotFound is returned when the discovery root does not exist.
	ErrRootNotFound = errors.New("plugin root not found")

	// ErrRegistryClosed is returned when using a closed registry.
	ErrRegistryClosed = errors.New("registry is closed")
)

// ManifestError is returned when a manifest is missing, unreadable, or does
// not match the manifest schema.
type ManifestError struct {
	Path  string // manifest file, or plugin directory when no file was found
	Field string // offending field, if known
	Err   error
}

func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest %s: field %q: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ManifestError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrManifest.
func (e *ManifestError) Is(target error) bool {
	return target == ErrManifest
}

// IndexError is returned for a plugin index outside the registry.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("plugin index %d out of range [0, %d)", e.Index, e.Len)
}

// Is reports whether target is ErrIndex.
func (e *IndexError) Is(target error) bool {
	return target == ErrIndex
}

// LoadError is returned when a plugin directory cannot be turned into a
// loaded plugin. Err is a *ManifestError, a *lua.CompileError or a
// *lua.RuntimeError.
type LoadError struct {
	Dir   string
	Stage string // "manifest", "compile" or "instantiate"
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %s (%s): %v", e.Dir, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}
