// Package bucket implements overlap-weighted aggregation of rate intervals
// into a fixed-resolution time series.
//
// Every bucket i of a Window covers [Start+i*Resolution, Start+(i+1)*Resolution).
// An interval carrying a rate v contributes v times the fraction of the
// bucket it overlaps, so the accumulated value of a bucket is the
// time-weighted mean rate over that bucket. Intervals are half-open: an
// interval ending exactly on a bucket edge does not touch the next bucket.
package bucket

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/hostload/pkg/alg/stats"
)

// ErrInvalidWindow indicates an analysis window that cannot hold any bucket.
var ErrInvalidWindow = errors.New("invalid analysis window")

// MaxBuckets bounds the bucket count of a window.
const MaxBuckets = 1 << 28

// Window is the analysis window [Start, End) split into buckets of
// Resolution source time units.
type Window struct {
	Start      int64
	End        int64
	Resolution int64
}

// NewWindow validates and returns a window.
func NewWindow(start, end, resolution int64) (Window, error) {
	w := Window{Start: start, End: end, Resolution: resolution}

	err := w.Validate()
	if err != nil {
		return Window{}, err
	}

	return w, nil
}

// Validate checks that the window is non-empty, its length fits in an int64,
// the resolution is positive and the bucket count is at most MaxBuckets.
func (w Window) Validate() error {
	if w.Resolution <= 0 {
		return fmt.Errorf("%w: resolution must be positive, got %d", ErrInvalidWindow, w.Resolution)
	}

	if w.End <= w.Start {
		return fmt.Errorf("%w: end %d must be after start %d", ErrInvalidWindow, w.End, w.Start)
	}

	span := w.End - w.Start
	if span <= 0 {
		return fmt.Errorf("%w: window [%d, %d) is too long", ErrInvalidWindow, w.Start, w.End)
	}

	if n := stats.CeilDiv(span, w.Resolution); n > MaxBuckets {
		return fmt.Errorf("%w: %d buckets exceeds %d", ErrInvalidWindow, n, MaxBuckets)
	}

	return nil
}

// Len returns the bucket count ceil((End-Start)/Resolution).
func (w Window) Len() int {
	return int(stats.CeilDiv(w.End-w.Start, w.Resolution))
}

// BucketStart returns the start time of bucket i in source time units.
func (w Window) BucketStart(i int) int64 {
	return w.Start + int64(i)*w.Resolution
}

// Times returns the start time of every bucket.
func (w Window) Times() []int64 {
	times := make([]int64, w.Len())
	for i := range times {
		times[i] = w.BucketStart(i)
	}

	return times
}

// Span is an interval expressed in bucket units relative to a window:
// bucket i covers [i, i+1). The raw record is kept for error reporting.
type Span struct {
	Value float64
	A     float64
	B     float64

	Start int64
	End   int64
}

// Normalize clips [start, end) to the window and rescales it to bucket units.
// Inverted intervals are not rejected here; Accumulator.Apply reports them.
func (w Window) Normalize(value float64, start, end int64) Span {
	res := float64(w.Resolution)

	clippedStart := stats.Clamp(start, w.Start, w.End)
	clippedEnd := stats.Clamp(end, w.Start, w.End)

	return Span{
		Value: value,
		A:     float64(clippedStart-w.Start) / res,
		B:     float64(clippedEnd-w.Start) / res,
		Start: start,
		End:   end,
	}
}
