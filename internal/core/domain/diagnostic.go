package domain

import (
	"fmt"
	"strings"
)

// Span is a position in a source file. The zero Span means "no location".
type Span struct {
	File string `json:"file,omitzero"`
	Line int    `json:"line,omitzero"`
	Col  int    `json:"col,omitzero"`
}

// IsZero reports whether the span carries no location.
func (s Span) IsZero() bool {
	return s.File == "" && s.Line == 0 && s.Col == 0
}

// String renders the span as file:line:col.
func (s Span) String() string {
	if s.IsZero() {
		return "<unknown>"
	}
	if s.Line == 0 {
		return s.File
	}
	if s.Col == 0 {
		return fmt.Sprintf("%s:%d", s.File, s.Line)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// DiagLevel is the severity of a diagnostic.
type DiagLevel uint8

const (
	// DiagNote is an informational diagnostic.
	DiagNote DiagLevel = iota
	// DiagWarning is a warning.
	DiagWarning
	// DiagError is an error; it fails the session.
	DiagError
	// DiagDelayedBug is an internal error that only surfaces if no real error was reported.
	DiagDelayedBug
)

// String returns the lower-case level name used when rendering.
func (l DiagLevel) String() string {
	switch l {
	case DiagWarning:
		return "warning"
	case DiagError:
		return "error"
	case DiagDelayedBug:
		return "delayed bug"
	default:
		return "note"
	}
}

// SubDiagnostic is a note attached to a diagnostic.
type SubDiagnostic struct {
	Message string `json:"message"`
	Span    Span   `json:"span,omitzero"`
}

// Diagnostic is a warning or error produced while computing a query.
// Diagnostics belong to the dependency node that produced them and are replayed
// verbatim when that node is reused from a previous session.
type Diagnostic struct {
	Level   DiagLevel       `json:"level"`
	Message string          `json:"message"`
	Span    Span            `json:"span,omitzero"`
	Notes   []SubDiagnostic `json:"notes,omitempty"`
}

// String renders the diagnostic as plain text.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Level.String())
	b.WriteString(": ")
	b.WriteString(d.Message)
	if !d.Span.IsZero() {
		b.WriteString("\n  --> ")
		b.WriteString(d.Span.String())
	}
	for _, n := range d.Notes {
		b.WriteString("\n  = note: ")
		b.WriteString(n.Message)
		if !n.Span.IsZero() {
			b.WriteString(" (")
			b.WriteString(n.Span.String())
			b.WriteString(")")
		}
	}
	return b.String()
}
