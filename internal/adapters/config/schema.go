package config

import "go.trai.ch/quarry/internal/core/domain"

// SchemaVersion is the version written into new quarry.yaml files.
const SchemaVersion = "1"

// Quarryfile is the on-disk shape of quarry.yaml.
type Quarryfile struct {
	Version       string `yaml:"version"`
	domain.Config `yaml:",inline"`
}
