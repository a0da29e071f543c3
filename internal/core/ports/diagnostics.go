package ports

import "go.trai.ch/quarry/internal/core/domain"

// DiagnosticSink receives diagnostics as they are emitted or replayed.
// The sink owns rendering; the engine owns accounting.
//
//go:generate go run go.uber.org/mock/mockgen -source=diagnostics.go -destination=mocks/mock_diagnostics.go -package=mocks
type DiagnosticSink interface {
	Emit(diag domain.Diagnostic)
}
