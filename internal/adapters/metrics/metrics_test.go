package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/internal/adapters/metrics"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
)

func TestRecorder_ImplementsMetrics(_ *testing.T) {
	var _ ports.Metrics = (*metrics.Recorder)(nil)
}

func TestRecorder_CountsEventsPerKind(t *testing.T) {
	r := metrics.New()

	r.RecordEvent("expanded", domain.EventExecuted)
	r.RecordEvent("expanded", domain.EventHit)
	r.RecordEvent("expanded", domain.EventHit)
	r.RecordEvent("includes", domain.EventGreen)
	r.ObserveDuration("expanded", 3*time.Millisecond)

	count, err := testutil.GatherAndCount(r.Registry(), "quarry_query_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "one series per kind and event")

	count, err = testutil.GatherAndCount(r.Registry(), "quarry_provider_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(r.Registry(), "quarry_query_reuse_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "hits and green nodes count as reuse, executions do not")
}

func TestRecorder_RegistriesAreIndependent(t *testing.T) {
	a, b := metrics.New(), metrics.New()
	a.RecordEvent("expanded", domain.EventHit)

	count, err := testutil.GatherAndCount(b.Registry(), "quarry_query_events_total")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := metrics.New()
	r.RecordEvent("summary", domain.EventExecuted)
	path := filepath.Join(t.TempDir(), "quarry.prom")

	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `quarry_query_events_total{event="executed",kind="summary"} 1`)
}

func TestRecorder_WriteTextfileFailure(t *testing.T) {
	r := metrics.New()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "quarry.prom"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMetricsWriteFailed)
}
