package logger

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
)

// NodeID is the unique identifier for the logger Graft node.
const NodeID graft.ID = "adapter.logger"

// FormatEnv selects the log format before quarry.yaml is read, so messages logged while
// loading the configuration already use it.
const FormatEnv = "QUARRY_LOG_FORMAT"

func init() {
	graft.Register(graft.Node[ports.Logger]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Logger, error) {
			return NewFromEnv(), nil
		},
	})
}

// NewFromEnv creates a Logger in the format named by FormatEnv, pretty by default.
func NewFromEnv() *Logger {
	lg := New().(*Logger)
	if os.Getenv(FormatEnv) == domain.LogFormatJSON {
		lg.SetJSON(true)
	}
	return lg
}
