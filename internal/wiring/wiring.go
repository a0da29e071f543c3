// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/quarry/internal/adapters/config"
	_ "go.trai.ch/quarry/internal/adapters/fs"
	_ "go.trai.ch/quarry/internal/adapters/logger"
	_ "go.trai.ch/quarry/internal/adapters/metrics"
	_ "go.trai.ch/quarry/internal/adapters/ondisk"
	_ "go.trai.ch/quarry/internal/adapters/telemetry"
	_ "go.trai.ch/quarry/internal/adapters/telemetry/progrock"
	_ "go.trai.ch/quarry/internal/adapters/watcher"
	// Register app nodes.
	_ "go.trai.ch/quarry/internal/app"
)
