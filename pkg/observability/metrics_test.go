package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/hostload/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.RunMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	rm, err := observability.NewRunMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return rm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func TestRunMetrics_RecordChunk(t *testing.T) {
	t.Parallel()

	rm, reader := setupTestMeter(t)
	ctx := context.Background()

	rm.RecordChunk(ctx, observability.StatusApplied, 10, 20*time.Millisecond)
	rm.RecordChunk(ctx, observability.StatusApplied, 5, 40*time.Millisecond)
	rm.RecordChunk(ctx, observability.StatusSkipped, 0, 0)
	rm.RecordChunk(ctx, observability.StatusFailed, 3, time.Second)
	rm.RecordFlush(ctx, 3*time.Millisecond)

	data := collectMetrics(t, reader)

	chunks := findMetric(data, "hostload.chunks.total")
	require.NotNil(t, chunks)

	sum, ok := chunks.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byStatus := map[string]int64{}

	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		byStatus[status.AsString()] = dp.Value
	}

	assert.Equal(t, map[string]int64{"applied": 2, "skipped": 1, "failed": 1}, byStatus)

	records := findMetric(data, "hostload.records.total")
	require.NotNil(t, records)

	recordSum, ok := records.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, recordSum.DataPoints, 1)
	assert.Equal(t, int64(15), recordSum.DataPoints[0].Value)

	duration := findMetric(data, "hostload.chunk.duration.seconds")
	require.NotNil(t, duration)

	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)

	flush := findMetric(data, "hostload.flush.duration.seconds")
	require.NotNil(t, flush)
}

func TestRunMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var rm *observability.RunMetrics

	assert.NotPanics(t, func() {
		rm.RecordChunk(context.Background(), observability.StatusApplied, 1, time.Second)
		rm.RecordFlush(context.Background(), time.Second)
	})
}
