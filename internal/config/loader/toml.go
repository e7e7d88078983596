package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pelletier/go-toml/v2"
)

// TOMLLoader decodes a TOML file into a struct.
type TOMLLoader struct {
	fs     FileSystem
	path   string
	strict bool
}

// TOMLOption configures a TOMLLoader.
type TOMLOption func(*TOMLLoader)

// WithFS sets the file system the loader reads from.
func WithFS(fsys FileSystem) TOMLOption {
	return func(l *TOMLLoader) {
		l.fs = fsys
	}
}

// WithStrict rejects keys that do not map to a field.
func WithStrict(strict bool) TOMLOption {
	return func(l *TOMLLoader) {
		l.strict = strict
	}
}

// NewTOMLLoader creates a new TOML loader for the given path.
func NewTOMLLoader(path string, opts ...TOMLOption) *TOMLLoader {
	l := &TOMLLoader{
		fs:   DefaultFS(),
		path: path,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the file the loader reads.
func (l *TOMLLoader) Path() string {
	return l.path
}

// Load decodes the file into v, which keeps its values for keys the file
// does not set. It reports false, nil when the file does not exist.
func (l *TOMLLoader) Load(v any) (bool, error) {
	data, err := l.fs.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading config file %s: %w", l.path, err)
	}

	if err := l.decode(data, v); err != nil {
		return true, err
	}
	return true, nil
}

func (l *TOMLLoader) decode(data []byte, v any) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	if l.strict {
		dec.DisallowUnknownFields()
	}

	err := dec.Decode(v)
	if err == nil {
		return nil
	}

	perr := &ParseError{Path: l.path, Message: err.Error(), Err: err}

	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		perr.Line, perr.Column = derr.Position()
	}

	var serr *toml.StrictMissingError
	if errors.As(err, &serr) {
		perr.Message = serr.String()
	}
	return perr
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
