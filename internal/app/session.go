package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.trai.ch/quarry/internal/adapters/diagnostics" //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/build"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/engine/query"
	"go.trai.ch/quarry/internal/queries"
	"go.trai.ch/quarry/internal/ui/style"
	"go.trai.ch/zerr"
)

// slowestReported is how many query spans are logged after a traced session.
const slowestReported = 5

// Report describes one finished session.
type Report struct {
	Files   []string
	Summary queries.Summary
	Stats   query.Stats
	Encoded query.EncodeResult
	// Saved is set when the session was persisted for the next one.
	Saved bool
}

// runSession computes the workload over the current sources, starting from prev.
// It returns the graph the next session starts from, also when the session reported
// errors, so watch mode keeps its history.
func (a *App) runSession(
	ctx context.Context,
	cfg domain.Config,
	prev *domain.SerializedGraph,
) (Report, *domain.SerializedGraph, error) {
	var report Report

	files, err := a.sources.Discover(cfg.Roots)
	if err != nil {
		return report, nil, err
	}
	if len(files) == 0 {
		return report, nil, zerr.With(domain.ErrNoSources, "roots", cfg.Roots)
	}
	report.Files = files

	texts := make(map[string]string, len(files))
	for _, f := range files {
		b, err := a.sources.ReadSource(f)
		if err != nil {
			return report, nil, err
		}
		texts[f] = string(b)
	}

	var sink *diagnostics.Renderer
	if cfg.LogFormat == domain.LogFormatJSON {
		sink = diagnostics.NewJSON(a.stderr)
	} else {
		sink = diagnostics.New(a.stderr)
	}

	tracer := a.tracer(cfg.Telemetry)
	e := query.NewEngine(a.registry,
		query.WithLogger(a.logger),
		query.WithTracer(tracer),
		query.WithMetrics(a.metrics),
		query.WithDiagnosticSink(sink),
		query.WithPrevious(prev),
		query.WithThreads(cfg.Threads),
		query.WithVerifyFingerprints(cfg.VerifyFingerprints),
		query.WithBuildVersion(build.Version),
	)
	if err := a.workload.Feed(e, texts); err != nil {
		return report, nil, err
	}
	tracer.EmitPlan(ctx, a.workload.Plan(files))

	err = e.Run(ctx, func(t *query.Task) error {
		fns := make([]func(*query.Task) error, len(files))
		for i, f := range domain.NewInternedStrings(files) {
			fns[i] = func(t *query.Task) error {
				return a.workload.FileStats.Ensure(t, f)
			}
		}
		if err := query.Parallel(t, fns...); err != nil {
			return err
		}
		var err error
		report.Summary, err = a.workload.Summary.Get(t, domain.Unit{})
		return err
	})
	if err != nil {
		return report, nil, zerr.Wrap(err, "query session failed")
	}
	finishErr := e.Finish()
	report.Stats = e.Stats()

	next, encoded, err := e.EncodeQueryResults()
	if err != nil {
		return report, nil, err
	}
	report.Encoded = encoded

	if cfg.Incremental {
		if err := a.store.Save(a.cacheRoot(cfg), next); err != nil {
			a.logger.Warn(fmt.Sprintf("incremental cache not saved: %v", err))
		} else {
			report.Saved = true
		}
	}
	if cfg.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.metricsPath(cfg)); err != nil {
			a.logger.Error(err)
		}
	}
	if cfg.Telemetry == domain.TelemetryOTel {
		a.logSlowest()
	}

	if finishErr != nil {
		return report, next, errors.Join(domain.ErrBuildFailed, finishErr)
	}
	return report, next, nil
}

func (a *App) metricsPath(cfg domain.Config) string {
	if filepath.IsAbs(cfg.MetricsFile) {
		return cfg.MetricsFile
	}
	return filepath.Join(a.root, cfg.MetricsFile)
}

func (a *App) logSlowest() {
	if a.tracers.Profiler == nil {
		return
	}
	for _, s := range a.tracers.Profiler.Slowest(slowestReported) {
		a.logger.Info(fmt.Sprintf("slow query %s took %s", s.Name, s.Duration.Round(time.Microsecond)))
	}
	a.tracers.Profiler.Reset()
}

func (a *App) printReport(r Report) {
	g := r.Stats.Graph
	_, _ = fmt.Fprintf(a.stdout, "%s %s\n",
		style.Check,
		style.Heading.Render(fmt.Sprintf("Built in %s", r.Stats.Elapsed.Round(time.Millisecond))))

	rows := [][2]string{
		{"files", fmt.Sprintf("%d (%s)", r.Summary.Files, humanize.Bytes(uint64(max(r.Summary.Bytes, 0))))},
		{"includes", humanize.Comma(int64(r.Summary.Includes))},
		{"lines", humanize.Comma(int64(r.Summary.Lines))},
		{"words", humanize.Comma(int64(r.Summary.Words))},
		{"queries", fmt.Sprintf("%d executed, %d reused", g.Executed, g.Green)},
	}
	if r.Stats.Warnings > 0 {
		rows = append(rows, [2]string{"warnings", humanize.Comma(r.Stats.Warnings)})
	}
	if r.Saved {
		rows = append(rows, [2]string{"cache", fmt.Sprintf("%d nodes saved", r.Encoded.Nodes)})
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(a.stdout, "  %s%s\n", style.Label.Render(row[0]), row[1])
	}
}
