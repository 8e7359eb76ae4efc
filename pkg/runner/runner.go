// Package runner drives a resumable aggregation: it pulls chunks from an
// interval source, applies them to a bucket accumulator, flushes the
// accumulator after every chunk and records checkpointable chunks as applied.
//
// Write order per chunk is apply, flush, mark. A crash before the flush
// loses nothing. A crash between flush and mark leaves that one shard
// unmarked, so it is applied a second time on resume; shards are applied
// at least once, not exactly once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/hostload/pkg/alg/stats"
	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
	"github.com/Sumatoshi-tech/hostload/pkg/interval"
	"github.com/Sumatoshi-tech/hostload/pkg/observability"
)

// Sentinel errors.
var (
	// ErrMissingSnapshot indicates applied shards in the checkpoint log but no
	// artifact holding their contributions.
	ErrMissingSnapshot = errors.New("checkpoint log lists applied shards but no snapshot exists")
	// ErrAlreadyRun indicates Run called on a runner that left INIT.
	ErrAlreadyRun = errors.New("runner already started")
	// ErrMissingOption indicates a required Options field left unset.
	ErrMissingOption = errors.New("missing runner option")
)

// Checkpoints is the applied-shard set the runner consults and extends.
type Checkpoints interface {
	IsApplied(id string) bool
	MarkApplied(id string) error
	Len() int
}

// Options configures a Runner. The runner takes ownership of Source and
// Store and closes both when Run returns.
type Options struct {
	Window  bucket.Window
	Dataset string
	Source  interval.Source
	Store   artifact.Store

	// Checkpoints may be nil for sources without checkpointable chunks.
	Checkpoints Checkpoints

	// Debug stops after the first applied chunk.
	Debug bool

	// RunID labels logs, spans and the result. Empty generates a UUID.
	RunID string

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.RunMetrics
}

// Result summarizes a run.
type Result struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	State    State     `json:"state" yaml:"state"`
	Dataset  string    `json:"dataset" yaml:"dataset"`
	Buckets  int       `json:"buckets" yaml:"buckets"`
	Applied  int       `json:"applied_chunks" yaml:"applied_chunks"`
	Skipped  int       `json:"skipped_chunks" yaml:"skipped_chunks"`
	Records  int       `json:"records" yaml:"records"`
	Resumed  bool      `json:"resumed" yaml:"resumed"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
	// MeanChunkSeconds is the mean wall-clock time per applied chunk.
	MeanChunkSeconds float64 `json:"mean_chunk_seconds" yaml:"mean_chunk_seconds"`
	Error            string  `json:"error,omitempty" yaml:"error,omitempty"`

	// Values is the final accumulator content.
	Values []float64 `json:"-" yaml:"-"`
}

// Runner executes one aggregation run.
type Runner struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	state  State
	acc    *bucket.Accumulator
	mean   stats.RunningMean
	result Result
}

// New validates opts and returns a runner in INIT.
func New(opts Options) (*Runner, error) {
	switch {
	case opts.Source == nil:
		return nil, fmt.Errorf("%w: source", ErrMissingOption)
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingOption)
	case opts.Dataset == "":
		return nil, fmt.Errorf("%w: dataset", ErrMissingOption)
	}

	err := opts.Window.Validate()
	if err != nil {
		return nil, err
	}

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("hostload")
	}

	return &Runner{
		opts:   opts,
		logger: logger,
		tracer: tracer,
		state:  StateInit,
		result: Result{RunID: opts.RunID, Dataset: opts.Dataset, Buckets: opts.Window.Len()},
	}, nil
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return r.state
}

// Run executes the run to a terminal state. The result is returned even on
// failure. Context cancellation is checked between chunks and ends the run
// in FAILED with the last flushed snapshot intact.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	if r.state != StateInit {
		return nil, ErrAlreadyRun
	}

	ctx = observability.WithRunID(ctx, r.opts.RunID)

	ctx, span := r.tracer.Start(ctx, "hostload.run", trace.WithAttributes(
		attribute.String("run.id", r.opts.RunID),
		attribute.String("run.dataset", r.opts.Dataset),
		attribute.Int("run.buckets", r.result.Buckets),
		attribute.Bool("run.debug", r.opts.Debug),
	))

	r.result.Started = time.Now()

	defer func() {
		err = errors.Join(err, r.release())

		r.finish(ctx, err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.SetAttributes(
			attribute.String("run.state", r.state.String()),
			attribute.Int("run.applied", r.result.Applied),
			attribute.Int("run.skipped", r.result.Skipped),
		)
		span.End()

		res = &r.result
	}()

	err = r.init(ctx)
	if err != nil {
		return nil, err
	}

	r.state = StateRunning

	return nil, r.loop(ctx)
}

func (r *Runner) init(ctx context.Context) error {
	w := r.opts.Window

	if r.opts.Checkpoints == nil || r.opts.Checkpoints.Len() == 0 {
		acc, err := bucket.New(w)
		if err != nil {
			return err
		}

		r.acc = acc

		return nil
	}

	snapshot, err := r.opts.Store.Load(ctx, r.opts.Dataset)
	if errors.Is(err, artifact.ErrNotFound) {
		return fmt.Errorf("%w: %d shards recorded", ErrMissingSnapshot, r.opts.Checkpoints.Len())
	}

	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	values, err := artifact.SeriesValues(snapshot, w)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	acc, err := bucket.Restore(w, values)
	if err != nil {
		return err
	}

	r.acc = acc
	r.result.Resumed = true

	r.logger.InfoContext(ctx, "resuming from snapshot",
		"dataset", r.opts.Dataset,
		"applied_shards", r.opts.Checkpoints.Len())

	return nil
}

func (r *Runner) loop(ctx context.Context) error {
	skippable, _ := r.opts.Source.(interval.Skippable)

	for {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}

		if skippable != nil {
			if id, ok := skippable.PeekID(); ok && r.isApplied(id) {
				skippable.SkipNext()
				r.skip(ctx, id)

				continue
			}
		}

		started := time.Now()

		chunk, ok, err := r.opts.Source.Next(ctx)
		if err != nil {
			r.opts.Metrics.RecordChunk(ctx, observability.StatusFailed, 0, time.Since(started))

			return fmt.Errorf("read chunk: %w", err)
		}

		if !ok {
			// A run that applied nothing still leaves a snapshot behind.
			if r.result.Applied == 0 {
				err = r.flush(ctx)
				if err != nil {
					return err
				}
			}

			r.state = StateCompleted

			return nil
		}

		if chunk.Checkpointable && r.isApplied(chunk.ID) {
			r.skip(ctx, chunk.ID)

			continue
		}

		err = r.applyChunk(ctx, chunk, started)
		if err != nil {
			r.opts.Metrics.RecordChunk(ctx, observability.StatusFailed, len(chunk.Records), time.Since(started))

			return fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}

		if r.opts.Debug {
			r.state = StateStoppedDebug
			r.logger.InfoContext(ctx, "debug mode: stopping after first chunk", "chunk", chunk.ID)

			return nil
		}
	}
}

func (r *Runner) applyChunk(ctx context.Context, chunk interval.Chunk, started time.Time) error {
	ctx, span := r.tracer.Start(ctx, "hostload.chunk", trace.WithAttributes(
		attribute.String("chunk.id", chunk.ID),
		attribute.Int("chunk.records", len(chunk.Records)),
	))
	defer span.End()

	err := r.acc.Apply(chunk.Spans(r.opts.Window))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")

		return err
	}

	err = r.flush(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "flush failed")

		return err
	}

	if chunk.Checkpointable && r.opts.Checkpoints != nil {
		err = r.opts.Checkpoints.MarkApplied(chunk.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "checkpoint failed")

			return fmt.Errorf("mark applied: %w", err)
		}
	}

	elapsed := time.Since(started)

	r.mean.Add(elapsed.Seconds())
	r.result.Applied++
	r.result.Records += len(chunk.Records)
	r.opts.Metrics.RecordChunk(ctx, observability.StatusApplied, len(chunk.Records), elapsed)

	r.logProgress(ctx, chunk, elapsed)

	return nil
}

func (r *Runner) flush(ctx context.Context) error {
	started := time.Now()

	snapshot, err := artifact.NewSeries(r.opts.Dataset, r.opts.Window, r.acc.Values())
	if err != nil {
		return err
	}

	err = r.opts.Store.Save(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	r.opts.Metrics.RecordFlush(ctx, time.Since(started))

	return nil
}

func (r *Runner) isApplied(id string) bool {
	return r.opts.Checkpoints != nil && r.opts.Checkpoints.IsApplied(id)
}

func (r *Runner) skip(ctx context.Context, id string) {
	r.result.Skipped++
	r.opts.Metrics.RecordChunk(ctx, observability.StatusSkipped, 0, 0)
	r.logger.DebugContext(ctx, "skipping applied chunk", "chunk", id)
}

func (r *Runner) logProgress(ctx context.Context, chunk interval.Chunk, elapsed time.Duration) {
	attrs := []any{
		"chunk", chunk.ID,
		"records", humanize.Comma(int64(len(chunk.Records))),
		"took", elapsed.Round(time.Millisecond).String(),
		"applied", r.result.Applied,
	}

	if remaining, known := r.opts.Source.Remaining(); known {
		eta := ETA(r.mean, remaining)
		attrs = append(attrs,
			"remaining", remaining,
			"eta", humanize.Time(time.Now().Add(eta)))
	}

	if progress, ok := r.opts.Source.(interval.Progress); ok {
		attrs = append(attrs, "progress", fmt.Sprintf("%.1f%%", progress.Fraction()*100))
	}

	r.logger.InfoContext(ctx, "applied chunk", attrs...)
}

// ETA is the running mean chunk duration times the chunks remaining.
func ETA(mean stats.RunningMean, remaining int) time.Duration {
	if mean.Count() == 0 || remaining <= 0 {
		return 0
	}

	return time.Duration(mean.Mean() * float64(remaining) * float64(time.Second))
}

// release closes the source and the store.
func (r *Runner) release() error {
	var errs []error

	for _, c := range []io.Closer{r.opts.Source, r.opts.Store} {
		err := c.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Runner) finish(ctx context.Context, err error) {
	if err != nil {
		r.state = StateFailed
		r.result.Error = err.Error()
	}

	if r.acc != nil {
		r.acc.Finalize()
		r.result.Values = r.acc.Values()
	}

	r.result.State = r.state
	r.result.Finished = time.Now()
	r.result.MeanChunkSeconds = r.mean.Mean()

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}

	r.logger.Log(ctx, level, "run finished",
		"state", r.state.String(),
		"applied", r.result.Applied,
		"skipped", r.result.Skipped,
		"records", humanize.Comma(int64(r.result.Records)),
		"elapsed", r.result.Finished.Sub(r.result.Started).Round(time.Millisecond).String())
}
