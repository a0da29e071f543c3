package ports

import "go.trai.ch/quarry/internal/core/domain"

// ConfigLoader defines the interface for loading the quarry configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads quarry.yaml from cwd, applies environment overrides and defaults.
	// A missing file is not an error.
	Load(cwd string) (domain.Config, error)

	// WriteDefault writes a default quarry.yaml into cwd and returns its path.
	WriteDefault(cwd string) (string, error)
}
