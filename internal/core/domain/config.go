package domain

import "runtime"

// Telemetry backends.
const (
	TelemetryNone     = "none"
	TelemetryOTel     = "otel"
	TelemetryProgrock = "progrock"
)

// Log formats.
const (
	LogFormatPretty = "pretty"
	LogFormatJSON   = "json"
)

// Config is the effective configuration of one quarry invocation.
type Config struct {
	// Threads is the size of the worker pool that executes queries.
	Threads int `mapstructure:"threads" yaml:"threads"`
	// CacheDir is the directory below which .quarry/incremental lives.
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
	// Incremental enables loading and saving the previous session.
	Incremental bool `mapstructure:"incremental" yaml:"incremental"`
	// VerifyFingerprints recomputes reused results that are not cached on disk and
	// checks them against the previous fingerprint.
	VerifyFingerprints bool `mapstructure:"verify_fingerprints" yaml:"verify_fingerprints"`
	// Telemetry selects the tracer backend: none, otel or progrock.
	Telemetry string `mapstructure:"telemetry" yaml:"telemetry"`
	// LogFormat is pretty or json.
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	// Roots are the directories and files whose sources are fed as inputs.
	Roots []string `mapstructure:"roots" yaml:"roots"`
	// MetricsFile, when set, receives the Prometheus text export after each session.
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
}

// DefaultConfig returns the configuration used when no file or environment overrides it.
func DefaultConfig() Config {
	return Config{
		Threads:     runtime.NumCPU(),
		CacheDir:    ".",
		Incremental: true,
		Telemetry:   TelemetryNone,
		LogFormat:   LogFormatPretty,
		Roots:       []string{"."},
	}
}
