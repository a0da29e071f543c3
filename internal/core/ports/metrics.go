package ports

import (
	"time"

	"go.trai.ch/quarry/internal/core/domain"
)

// Metrics records query engine activity.
//
//go:generate go run go.uber.org/mock/mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks
type Metrics interface {
	// RecordEvent counts one event for a query kind.
	RecordEvent(kind string, event domain.QueryEvent)
	// ObserveDuration records how long a provider ran.
	ObserveDuration(kind string, d time.Duration)
}
