// Package app implements the application layer for quarry.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.trai.ch/quarry/internal/adapters/metrics"            //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/telemetry"          //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/watcher"            //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
	"go.trai.ch/quarry/internal/engine/query"
	"go.trai.ch/quarry/internal/queries"
	"go.trai.ch/quarry/internal/ui/style"
	"go.trai.ch/zerr"
)

// Tracers holds the tracer backends a session can select through its configuration.
type Tracers struct {
	OTel     *telemetry.OTelTracer
	Profiler *telemetry.Profiler
	Progrock *progrock.Recorder
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	store        ports.IncrementalStore
	sources      ports.SourceReader
	metrics      *metrics.Recorder
	tracers      Tracers
	watcher      ports.Watcher
	hashes       *watcher.HashCache

	registry *query.Registry
	workload *queries.Workload

	root           string
	stdout         io.Writer
	stderr         io.Writer
	debounceWindow time.Duration
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	store ports.IncrementalStore,
	sources ports.SourceReader,
	rec *metrics.Recorder,
	tracers Tracers,
) *App {
	reg := query.NewRegistry()
	return &App{
		configLoader:   loader,
		logger:         log,
		store:          store,
		sources:        sources,
		metrics:        rec,
		tracers:        tracers,
		registry:       reg,
		workload:       queries.Register(reg),
		root:           ".",
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		debounceWindow: watcher.DefaultDebounceWindow,
	}
}

// WithWatcher sets the file watcher and hash cache used by Watch.
func (a *App) WithWatcher(w ports.Watcher, hashes *watcher.HashCache) *App {
	a.watcher = w
	a.hashes = hashes
	return a
}

// WithRoot sets the workspace directory configuration and cache paths are relative to.
func (a *App) WithRoot(dir string) *App {
	a.root = dir
	return a
}

// WithOutput redirects reports and diagnostics.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// WithDebounceWindow sets how long Watch waits for file events to settle.
// This is primarily used for testing.
func (a *App) WithDebounceWindow(d time.Duration) *App {
	a.debounceWindow = d
	return a
}

// BuildOptions override the loaded configuration for one invocation.
type BuildOptions struct {
	Roots         []string
	Jobs          int
	NoIncremental bool
	Verify        bool
	JSONLogs      bool
}

// Build runs one session: it loads the previous session, feeds every source, computes
// the summary and persists the new session.
func (a *App) Build(ctx context.Context, opts BuildOptions) (Report, error) {
	cfg, err := a.config(opts)
	if err != nil {
		return Report{}, err
	}

	report, _, err := a.runSession(ctx, cfg, a.loadPrevious(cfg))
	if err != nil {
		return report, err
	}
	a.printReport(report)
	return report, nil
}

// Stats prints what the persisted session contains.
func (a *App) Stats(_ context.Context) error {
	cfg, err := a.configLoader.Load(a.root)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	info, err := a.store.Stat(a.cacheRoot(cfg))
	if err != nil {
		return err
	}
	if !info.Exists {
		a.logger.Info(fmt.Sprintf("no incremental cache at %s", info.Path))
		return nil
	}

	_, _ = fmt.Fprintln(a.stdout, style.Heading.Render("Incremental cache"))
	rows := [][2]string{
		{"path", info.Path},
		{"size", humanize.Bytes(uint64(max(info.Size, 0)))},
		{"session", info.SessionID},
		{"build", info.BuildVersion},
		{"written", humanize.Time(info.CreatedAt)},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(a.stdout, "  %s%s\n", style.Label.Render(r[0]), r[1])
	}
	return nil
}

// Clean removes the persisted session.
func (a *App) Clean(_ context.Context) error {
	cfg, err := a.configLoader.Load(a.root)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	a.logger.Info("removing incremental cache...")
	if err := a.store.Remove(a.cacheRoot(cfg)); err != nil {
		return err
	}
	a.logger.Info("removed incremental cache")
	return nil
}

// Init writes a default configuration file into the workspace.
func (a *App) Init(_ context.Context) error {
	path, err := a.configLoader.WriteDefault(a.root)
	if err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("wrote %s", path))
	return nil
}

// Close releases the tracer backends.
func (a *App) Close() error {
	if a.tracers.Progrock != nil {
		return a.tracers.Progrock.Close()
	}
	return nil
}

// jsonSwitcher is implemented by loggers that can switch to JSON output.
type jsonSwitcher interface {
	SetJSON(enable bool)
}

// config loads the configuration and applies the command line overrides.
func (a *App) config(opts BuildOptions) (domain.Config, error) {
	cfg, err := a.configLoader.Load(a.root)
	if err != nil {
		return cfg, zerr.Wrap(err, "failed to load configuration")
	}

	if len(opts.Roots) > 0 {
		cfg.Roots = opts.Roots
	}
	if opts.Jobs > 0 {
		cfg.Threads = opts.Jobs
	}
	if opts.NoIncremental {
		cfg.Incremental = false
	}
	if opts.Verify {
		cfg.VerifyFingerprints = true
	}
	if opts.JSONLogs {
		cfg.LogFormat = domain.LogFormatJSON
	}

	if s, ok := a.logger.(jsonSwitcher); ok {
		s.SetJSON(cfg.LogFormat == domain.LogFormatJSON)
	}
	return cfg, nil
}

func (a *App) cacheRoot(cfg domain.Config) string {
	if filepath.IsAbs(cfg.CacheDir) {
		return cfg.CacheDir
	}
	return filepath.Join(a.root, cfg.CacheDir)
}

// loadPrevious returns the persisted session, or nil when there is none or it cannot
// be used. A cache that fails to load never fails the build.
func (a *App) loadPrevious(cfg domain.Config) *domain.SerializedGraph {
	if !cfg.Incremental {
		return nil
	}
	prev, err := a.store.Load(a.cacheRoot(cfg))
	if err != nil {
		a.logger.Warn(fmt.Sprintf("ignoring incremental cache: %v", err))
		return nil
	}
	return prev
}

func (a *App) tracer(kind string) ports.Tracer {
	switch kind {
	case domain.TelemetryOTel:
		if a.tracers.OTel != nil {
			return a.tracers.OTel
		}
	case domain.TelemetryProgrock:
		if a.tracers.Progrock != nil {
			return a.tracers.Progrock
		}
	}
	return telemetry.NewNoOpTracer()
}
