// Package diagnostics renders query diagnostics for humans and machines.
package diagnostics

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/ui/output"
	"go.trai.ch/quarry/internal/ui/style"
)

// Renderer implements ports.DiagnosticSink. It writes each diagnostic as soon as it is
// emitted and counts them by level.
type Renderer struct {
	mu       sync.Mutex
	out      *termenv.Output
	w        io.Writer
	jsonMode bool
	counts   map[domain.DiagLevel]int
}

// New creates a Renderer writing colored text to w.
func New(w io.Writer) *Renderer {
	return &Renderer{
		out:    output.New(w),
		w:      w,
		counts: make(map[domain.DiagLevel]int),
	}
}

// NewJSON creates a Renderer writing one JSON object per diagnostic.
func NewJSON(w io.Writer) *Renderer {
	r := New(w)
	r.jsonMode = true
	return r
}

// Emit renders one diagnostic.
func (r *Renderer) Emit(d domain.Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[d.Level]++
	if r.jsonMode {
		data, err := json.Marshal(jsonDiagnostic{
			Diagnostic: d,
			Level:      d.Level.String(),
			Severity:   domain.LogLevelFor(d.Level).String(),
		})
		if err != nil {
			return
		}
		_, _ = r.w.Write(append(data, '\n'))
		return
	}
	_, _ = r.out.WriteString(r.render(d))
}

// Count returns how many diagnostics of the given level were emitted.
func (r *Renderer) Count(level domain.DiagLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[level]
}

// jsonDiagnostic carries the slog level name as severity, so diagnostics filter like
// JSON log records.
type jsonDiagnostic struct {
	domain.Diagnostic
	Level    string `json:"level"`
	Severity string `json:"severity"`
}

func (r *Renderer) render(d domain.Diagnostic) string {
	var b strings.Builder

	color := levelColor(d.Level)
	b.WriteString(r.out.String(d.Level.String()).Foreground(color).Bold().String())
	b.WriteString(r.out.String(": " + d.Message).Bold().String())
	b.WriteString("\n")

	gutter := r.out.String("  " + style.Arrow + " ").Foreground(termenv.RGBColor(string(style.Cyan))).String()
	if !d.Span.IsZero() {
		b.WriteString(gutter)
		b.WriteString(d.Span.String())
		b.WriteString("\n")
	}
	for _, n := range d.Notes {
		b.WriteString("  = ")
		b.WriteString(r.out.String("note").Bold().String())
		b.WriteString(": ")
		b.WriteString(n.Message)
		if !n.Span.IsZero() {
			b.WriteString("\n    ")
			b.WriteString(gutter)
			b.WriteString(n.Span.String())
		}
		b.WriteString("\n")
	}
	return b.String()
}

func levelColor(level domain.DiagLevel) termenv.Color {
	switch level {
	case domain.DiagError, domain.DiagDelayedBug:
		return termenv.RGBColor(string(style.Red))
	case domain.DiagWarning:
		return termenv.RGBColor(string(style.Yellow))
	default:
		return termenv.RGBColor(string(style.Cyan))
	}
}
