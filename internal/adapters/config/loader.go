// Package config loads the quarry configuration from quarry.yaml and the environment.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the name of the config file looked up in the working directory.
	FileName = domain.ConfigFileName
	// EnvPrefix prefixes every environment override, e.g. QUARRY_THREADS.
	EnvPrefix = "QUARRY"
)

// Loader implements ports.ConfigLoader using viper.
type Loader struct {
	logger ports.Logger
}

// NewLoader creates a new Loader.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load resolves the configuration with the priority environment, then quarry.yaml
// in cwd, then defaults. Zero threads selects one per CPU.
func (l *Loader) Load(cwd string) (domain.Config, error) {
	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(cwd)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return domain.Config{}, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "cwd", cwd)
		}
	} else {
		l.logger.Info("using config file " + v.ConfigFileUsed())
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Config{}, zerr.With(zerr.Wrap(err, domain.ErrConfigInvalid.Error()), "cwd", cwd)
	}
	if cfg.Threads == 0 {
		cfg.Threads = runtime.NumCPU()
	}
	if err := Validate(cfg); err != nil {
		return domain.Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes a default quarry.yaml into cwd. An existing file is left alone.
func (l *Loader) WriteDefault(cwd string) (string, error) {
	path := filepath.Join(cwd, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", zerr.With(zerr.Wrap(os.ErrExist, domain.ErrConfigWriteFailed.Error()), "path", path)
	}

	cfg := domain.DefaultConfig()
	// Zero threads means one per CPU of the machine that runs the build.
	cfg.Threads = 0
	data, err := yaml.Marshal(Quarryfile{Version: SchemaVersion, Config: cfg})
	if err != nil {
		return "", zerr.Wrap(err, domain.ErrConfigWriteFailed.Error())
	}

	//nolint:gosec // Path is the working directory chosen by the user
	if err := os.WriteFile(path, data, domain.FilePerm); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrConfigWriteFailed.Error()), "path", path)
	}
	return path, nil
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg domain.Config) error {
	if cfg.Threads < 1 {
		return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "threads must be positive"), "threads", cfg.Threads)
	}
	if !slices.Contains([]string{domain.TelemetryNone, domain.TelemetryOTel, domain.TelemetryProgrock}, cfg.Telemetry) {
		return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "unknown telemetry backend"), "telemetry", cfg.Telemetry)
	}
	if !slices.Contains([]string{domain.LogFormatPretty, domain.LogFormatJSON}, cfg.LogFormat) {
		return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "unknown log format"), "log_format", cfg.LogFormat)
	}
	if len(cfg.Roots) == 0 {
		return zerr.Wrap(domain.ErrConfigInvalid, "at least one root is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := domain.DefaultConfig()
	v.SetDefault("threads", d.Threads)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("incremental", d.Incremental)
	v.SetDefault("verify_fingerprints", d.VerifyFingerprints)
	v.SetDefault("telemetry", d.Telemetry)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("roots", d.Roots)
	v.SetDefault("metrics_file", d.MetricsFile)
}
