package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricChunksTotal   = "hostload.chunks.total"
	metricRecordsTotal  = "hostload.records.total"
	metricChunkDuration = "hostload.chunk.duration.seconds"
	metricFlushDuration = "hostload.flush.duration.seconds"

	attrStatus = "status"
)

// Chunk outcomes recorded on hostload.chunks.total.
const (
	StatusApplied = "applied"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// durationBucketBoundaries covers 1ms to 600s: database pages and small
// shards finish in milliseconds, large compressed shards take minutes.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// RunMetrics holds the OTel instruments for an aggregation run.
type RunMetrics struct {
	chunksTotal   metric.Int64Counter
	recordsTotal  metric.Int64Counter
	chunkDuration metric.Float64Histogram
	flushDuration metric.Float64Histogram
}

// NewRunMetrics creates run instruments from the given meter.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	chunks, err := mt.Int64Counter(metricChunksTotal,
		metric.WithDescription("Chunks handled by outcome"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunksTotal, err)
	}

	records, err := mt.Int64Counter(metricRecordsTotal,
		metric.WithDescription("Interval records applied"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRecordsTotal, err)
	}

	chunkDur, err := mt.Float64Histogram(metricChunkDuration,
		metric.WithDescription("Per-chunk read, apply and flush duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunkDuration, err)
	}

	flushDur, err := mt.Float64Histogram(metricFlushDuration,
		metric.WithDescription("Artifact flush duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFlushDuration, err)
	}

	return &RunMetrics{
		chunksTotal:   chunks,
		recordsTotal:  records,
		chunkDuration: chunkDur,
		flushDuration: flushDur,
	}, nil
}

// RecordChunk records one chunk outcome. Records and duration are only
// counted for applied chunks. Safe to call on a nil receiver (no-op).
func (rm *RunMetrics) RecordChunk(ctx context.Context, status string, records int, duration time.Duration) {
	if rm == nil {
		return
	}

	rm.chunksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))

	if status != StatusApplied {
		return
	}

	rm.recordsTotal.Add(ctx, int64(records))
	rm.chunkDuration.Record(ctx, duration.Seconds())
}

// RecordFlush records one artifact flush. Safe to call on a nil receiver (no-op).
func (rm *RunMetrics) RecordFlush(ctx context.Context, duration time.Duration) {
	if rm == nil {
		return
	}

	rm.flushDuration.Record(ctx, duration.Seconds())
}
