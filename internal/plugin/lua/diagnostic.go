package lua

import (
	"fmt"
	"io"
	"strings"
)

// Severity classifies a diagnostic.
type Severity int

const (
	// SeverityWarning does not prevent a unit from being produced.
	SeverityWarning Severity = iota
	// SeverityError prevents a unit from being produced.
	SeverityError
)

// String returns a string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is a single compiler message tied to a source location.
// Line and Column are 1-based; zero means unknown.
type Diagnostic struct {
	Severity Severity
	File     string
	Line     int
	Column   int
	Message  string
}

// String renders the diagnostic as file:line:col: severity: message.
func (d Diagnostic) String() string {
	var loc string
	switch {
	case d.Line > 0 && d.Column > 0:
		loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
	case d.Line > 0:
		loc = fmt.Sprintf("%s:%d", d.File, d.Line)
	default:
		loc = d.File
	}
	return fmt.Sprintf("%s: %s: %s", loc, d.Severity, d.Message)
}

// Diagnostics is an ordered list of diagnostics.
type Diagnostics []Diagnostic

// HasErrors returns true if any diagnostic has error severity.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity diagnostics.
func (ds Diagnostics) Errors() Diagnostics {
	return ds.filter(SeverityError)
}

// Warnings returns the warning-severity diagnostics.
func (ds Diagnostics) Warnings() Diagnostics {
	return ds.filter(SeverityWarning)
}

func (ds Diagnostics) filter(s Severity) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Render writes one diagnostic per line to w.
func (ds Diagnostics) Render(w io.Writer) error {
	for _, d := range ds {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return err
		}
	}
	return nil
}

// String returns all diagnostics, one per line.
func (ds Diagnostics) String() string {
	var b strings.Builder
	_ = ds.Render(&b)
	return strings.TrimSuffix(b.String(), "\n")
}
