package domain

import "strings"

// CycleError describes a query that transitively requires its own result.
//
// Stack lists the queries on the cycle in call order: Stack[0] is the query that was
// requested again, each following frame is required by the one before it, and the last
// frame requires Stack[0].
type CycleError struct {
	Stack []QueryFrame
	// AcrossThreads is set when the cycle was found by the deadlock watcher rather than
	// on a single call stack.
	AcrossThreads bool
}

// Error implements error.
func (e *CycleError) Error() string {
	if len(e.Stack) == 0 {
		return ErrCycleDetected.Error()
	}
	parts := make([]string, 0, len(e.Stack)+1)
	for _, f := range e.Stack {
		parts = append(parts, f.String())
	}
	parts = append(parts, e.Stack[0].String())
	return "cycle detected: " + strings.Join(parts, " -> ")
}

// Unwrap lets errors.Is match ErrCycleDetected.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// Diagnostic renders the cycle as a chained diagnostic at the given level.
func (e *CycleError) Diagnostic(level DiagLevel) Diagnostic {
	if len(e.Stack) == 0 {
		return Diagnostic{Level: level, Message: ErrCycleDetected.Error()}
	}
	head := e.Stack[0]
	d := Diagnostic{
		Level:   level,
		Message: "cycle detected when computing " + head.String(),
		Span:    head.Span,
	}
	for _, f := range e.Stack[1:] {
		d.Notes = append(d.Notes, SubDiagnostic{
			Message: "...which requires computing " + f.String() + "...",
			Span:    f.Span,
		})
	}
	if len(e.Stack) == 1 {
		d.Notes = append(d.Notes, SubDiagnostic{
			Message: "...which immediately requires computing " + head.String() + " again",
		})
	} else {
		d.Notes = append(d.Notes, SubDiagnostic{
			Message: "...which again requires computing " + head.String() + ", completing the cycle",
		})
	}
	if e.AcrossThreads {
		d.Notes = append(d.Notes, SubDiagnostic{Message: "the cycle spans multiple worker threads"})
	}
	return d
}
