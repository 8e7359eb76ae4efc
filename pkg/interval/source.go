// Package interval provides the chunked sources of rate intervals that feed
// bucket aggregation: paginated database queries and compressed shard files.
package interval

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
)

// ErrSourceIO is the sentinel matched by every source read failure.
var ErrSourceIO = errors.New("interval source I/O")

// Record is a rate value sustained over [Start, End).
type Record struct {
	Value float64
	Start int64
	End   int64
}

// Chunk is one unit of work pulled from a source.
type Chunk struct {
	// ID identifies the chunk: a shard path or "page@<offset>".
	ID string
	// Records are the chunk's rows in source order.
	Records []Record
	// Checkpointable reports whether the chunk is a durable resume unit.
	Checkpointable bool
}

// Spans normalizes the chunk's records against w.
func (c Chunk) Spans(w bucket.Window) []bucket.Span {
	spans := make([]bucket.Span, len(c.Records))
	for i, rec := range c.Records {
		spans[i] = w.Normalize(rec.Value, rec.Start, rec.End)
	}

	return spans
}

// Source yields chunks until exhausted. Exhaustion is reported as ok=false
// with a nil error.
type Source interface {
	Next(ctx context.Context) (chunk Chunk, ok bool, err error)
	// Remaining is an advisory count of chunks left, for ETA logging.
	Remaining() (int, bool)
	Close() error
}

// Skippable sources can pass over a chunk without reading it.
type Skippable interface {
	PeekID() (string, bool)
	SkipNext()
}

// Progress reports how far through the analysis window a source has read,
// as a fraction in [0,1].
type Progress interface {
	Fraction() float64
}

// SourceError is a read or parse failure of a single chunk.
type SourceError struct {
	ID   string
	Line int
	Err  error
}

func (e *SourceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("read %s line %d: %v", e.ID, e.Line, e.Err)
	}

	return fmt.Sprintf("read %s: %v", e.ID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Is matches ErrSourceIO.
func (e *SourceError) Is(target error) bool { return target == ErrSourceIO }
