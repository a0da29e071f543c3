package app_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/internal/adapters/fs"
	"go.trai.ch/quarry/internal/adapters/metrics"
	"go.trai.ch/quarry/internal/adapters/ondisk"
	"go.trai.ch/quarry/internal/adapters/telemetry"
	"go.trai.ch/quarry/internal/adapters/telemetry/progrock"
	"go.trai.ch/quarry/internal/app"
	"go.trai.ch/quarry/internal/build"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	dir    string
	app    *app.App
	loader *mocks.MockConfigLoader
	logger *mocks.MockLogger
	stdout *syncBuffer
	stderr *syncBuffer
}

func testConfig() domain.Config {
	return domain.Config{
		Threads:     2,
		CacheDir:    ".",
		Incremental: true,
		Telemetry:   domain.TelemetryNone,
		LogFormat:   domain.LogFormatPretty,
		Roots:       []string{"."},
	}
}

// newFixture builds an App over real adapters in a temporary workspace. The loader
// returns cfg.
func newFixture(t *testing.T, cfg domain.Config, tracers app.Tracers) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		dir:    t.TempDir(),
		loader: mocks.NewMockConfigLoader(ctrl),
		logger: mocks.NewMockLogger(ctrl),
		stdout: &syncBuffer{},
		stderr: &syncBuffer{},
	}
	f.loader.EXPECT().Load(f.dir).Return(cfg, nil).AnyTimes()

	f.app = app.New(
		f.loader,
		f.logger,
		ondisk.NewStore(build.Version),
		fs.NewSourceReader(fs.NewWalker(), f.dir),
		metrics.New(),
		tracers,
	).WithRoot(f.dir).WithOutput(f.stdout, f.stderr)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
	require.NoError(t, os.WriteFile(path, []byte(content), domain.FilePerm))
}

func TestApp_Build_PersistsAndReuses(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	f.write(t, "main.q", "hello\n#include \"parts/a.q\"")
	f.write(t, "parts/a.q", "world wide")
	f.write(t, "notes.txt", "not a source")

	first, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.q", "parts/a.q"}, first.Files)
	assert.Equal(t, 2, first.Summary.Files)
	assert.Equal(t, 1, first.Summary.Includes)
	assert.True(t, first.Saved)
	assert.FileExists(t, domain.CacheFilePath(f.dir))
	assert.Contains(t, f.stdout.String(), "Built in")

	second, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Summary, second.Summary)
	// Only the manifest and the summary that reads it run again.
	assert.Equal(t, int64(2), second.Stats.Graph.Executed)
	assert.Positive(t, second.Stats.Graph.Green)
}

func TestApp_Build_ChangedSourceRecomputes(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	f.write(t, "a.q", "one")
	f.write(t, "b.q", "two")

	_, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.NoError(t, err)

	f.write(t, "b.q", "two three")
	report, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Summary.Words)
	assert.Greater(t, report.Stats.Graph.Executed, int64(2))
	assert.Positive(t, report.Stats.Graph.Green, "a.q is reused")
}

func TestApp_Build_DamagedCacheDegrades(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	f.logger.EXPECT().Warn(gomock.Any()).Do(func(msg string) {
		assert.Contains(t, msg, "ignoring incremental cache")
	})
	f.write(t, "a.q", "text")

	path := domain.CacheFilePath(f.dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), domain.FilePerm))

	report, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Files)
	assert.True(t, report.Saved, "the damaged cache is replaced")
}

func TestApp_Build_Options(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	f.write(t, "top.q", "top")
	f.write(t, "sub/inner.q", "inner")

	report, err := f.app.Build(context.Background(), app.BuildOptions{
		Roots:         []string{"sub"},
		Jobs:          1,
		NoIncremental: true,
		Verify:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/inner.q"}, report.Files)
	assert.False(t, report.Saved)
	assert.NoFileExists(t, domain.CacheFilePath(f.dir))
}

func TestApp_Build_ReportsDiagnostics(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	// Both files may start on different threads, which the deadlock watcher resolves.
	f.logger.EXPECT().Warn(gomock.Any()).AnyTimes()
	f.write(t, "a.q", "#include \"b.q\"\n#include \"missing.q\"")
	f.write(t, "b.q", "#include \"a.q\"")

	report, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBuildFailed))
	assert.True(t, report.Saved, "failed sessions are still persisted")

	stderr := f.stderr.String()
	assert.Contains(t, stderr, "cycle detected when computing expanded(")
	assert.Contains(t, stderr, `included file "missing.q" not found`)
	assert.Contains(t, stderr, "a.q:2")
}

func TestApp_Build_JSONDiagnostics(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	f.write(t, "a.q", "#include \"missing.q\"")

	_, err := f.app.Build(context.Background(), app.BuildOptions{JSONLogs: true})
	require.NoError(t, err)

	line := strings.TrimSpace(f.stderr.String())
	assert.True(t, strings.HasPrefix(line, "{"), "got %q", line)
	assert.Contains(t, line, `"level":"warning"`)
}

func TestApp_Build_NoSources(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})

	_, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoSources))
}

func TestApp_Build_WritesMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsFile = "metrics.prom"
	f := newFixture(t, cfg, app.Tracers{})
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	f.write(t, "a.q", "text")

	_, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.dir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "quarry_query_events_total")
}

func TestApp_Build_Telemetry(t *testing.T) {
	t.Run("otel logs the slowest queries", func(t *testing.T) {
		cfg := testConfig()
		cfg.Telemetry = domain.TelemetryOTel
		profiler := telemetry.NewProfiler()
		f := newFixture(t, cfg, app.Tracers{
			OTel:     telemetry.NewOTelTracerFromProvider(telemetry.NewProvider(profiler), "test"),
			Profiler: profiler,
		})
		var slow []string
		f.logger.EXPECT().Info(gomock.Any()).Do(func(msg string) {
			if strings.HasPrefix(msg, "slow query") {
				slow = append(slow, msg)
			}
		}).AnyTimes()
		f.write(t, "a.q", "text")

		_, err := f.app.Build(context.Background(), app.BuildOptions{})
		require.NoError(t, err)
		assert.NotEmpty(t, slow)
		assert.Empty(t, profiler.Slowest(1), "timings are reset after each session")
	})

	t.Run("progrock", func(t *testing.T) {
		cfg := testConfig()
		cfg.Telemetry = domain.TelemetryProgrock
		f := newFixture(t, cfg, app.Tracers{Progrock: progrock.New()})
		f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
		f.write(t, "a.q", "text")

		_, err := f.app.Build(context.Background(), app.BuildOptions{})
		require.NoError(t, err)
		assert.NoError(t, f.app.Close())
	})
}

func TestApp_StatsAndClean(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	var infos []string
	f.logger.EXPECT().Info(gomock.Any()).Do(func(msg string) {
		infos = append(infos, msg)
	}).AnyTimes()
	f.write(t, "a.q", "text")

	require.NoError(t, f.app.Stats(context.Background()))
	require.NotEmpty(t, infos)
	assert.Contains(t, infos[len(infos)-1], "no incremental cache")

	_, err := f.app.Build(context.Background(), app.BuildOptions{})
	require.NoError(t, err)

	require.NoError(t, f.app.Stats(context.Background()))
	out := f.stdout.String()
	assert.Contains(t, out, "Incremental cache")
	assert.Contains(t, out, build.Version)

	require.NoError(t, f.app.Clean(context.Background()))
	assert.NoFileExists(t, domain.CacheFilePath(f.dir))
	assert.Contains(t, infos[len(infos)-1], "removed incremental cache")
}

func TestApp_Init(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	want := filepath.Join(f.dir, "quarry.yaml")
	f.loader.EXPECT().WriteDefault(f.dir).Return(want, nil)
	f.logger.EXPECT().Info("wrote " + want)

	require.NoError(t, f.app.Init(context.Background()))
}

func TestApp_Init_Error(t *testing.T) {
	f := newFixture(t, testConfig(), app.Tracers{})
	f.loader.EXPECT().WriteDefault(f.dir).Return("", os.ErrExist)

	err := f.app.Init(context.Background())
	assert.ErrorIs(t, err, os.ErrExist)
}
