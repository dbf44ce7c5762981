package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/config"
)

func TestNewDisabledIsNoOp(t *testing.T) {
	m, err := New(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)

	_, ok := m.(NoOp)
	assert.True(t, ok)

	m.RecordQuery(context.Background(), bench.SQLite, bench.Create, bench.Table, time.Second)
	assert.NoError(t, m.Close(context.Background()))
}

func TestNewExporterRequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), config.TelemetryConfig{Enabled: true})
	assert.Error(t, err)
}

func TestExporterRecordsHistogram(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()

	exp, err := newExporter(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	exp.RecordQuery(ctx, bench.DuckDB, bench.Alter, bench.Table, 250*time.Millisecond)
	exp.RecordQuery(ctx, bench.DuckDB, bench.Alter, bench.Table, 750*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "ddlbench_query_duration_seconds", m.Name)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)

	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(2), dp.Count)
	assert.InDelta(t, 1.0, dp.Sum, 1e-9)

	sys, ok := dp.Attributes.Value("system")
	require.True(t, ok)
	assert.Equal(t, "duckDB", sys.AsString())

	require.NoError(t, exp.Close(ctx))
}
