package bucket

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/hostload/pkg/alg/stats"
)

// Sentinel errors for accumulator operations.
var (
	// ErrInvalidInterval is wrapped by every ValidationError.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrLengthMismatch indicates restored values that do not match the window.
	ErrLengthMismatch = errors.New("accumulator length mismatch")
	// ErrFinalized indicates a mutation attempt after Finalize.
	ErrFinalized = errors.New("accumulator is finalized")
)

// ValidationError reports a malformed record that caused a chunk to be rejected.
type ValidationError struct {
	// Index is the record's position within the rejected chunk.
	Index int
	// Span is the offending record.
	Span Span
	// Reason describes what is wrong with it.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d (value=%g start=%d end=%d): %s",
		e.Index, e.Span.Value, e.Span.Start, e.Span.End, e.Reason)
}

// Unwrap lets callers match the error with errors.Is(err, ErrInvalidInterval).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInterval
}

// Accumulator holds the bucket sums for one window.
// It is not safe for concurrent use.
type Accumulator struct {
	window    Window
	values    []float64
	scratch   []float64
	owners    []int
	finalized bool
}

// New returns a zero-filled accumulator for the window.
func New(w Window) (*Accumulator, error) {
	err := w.Validate()
	if err != nil {
		return nil, err
	}

	return &Accumulator{
		window: w,
		values: make([]float64, w.Len()),
	}, nil
}

// Restore returns an accumulator seeded with previously persisted values.
func Restore(w Window, values []float64) (*Accumulator, error) {
	acc, err := New(w)
	if err != nil {
		return nil, err
	}

	if len(values) != len(acc.values) {
		return nil, fmt.Errorf("%w: window has %d buckets, got %d values", ErrLengthMismatch, len(acc.values), len(values))
	}

	copy(acc.values, values)

	return acc, nil
}

// Window returns the accumulator's analysis window.
func (a *Accumulator) Window() Window {
	return a.window
}

// Len returns the number of buckets.
func (a *Accumulator) Len() int {
	return len(a.values)
}

// At returns the value of bucket i.
func (a *Accumulator) At(i int) float64 {
	return a.values[i]
}

// Values returns a copy of all bucket values.
func (a *Accumulator) Values() []float64 {
	out := make([]float64, len(a.values))
	copy(out, a.values)

	return out
}

// Finalize closes the accumulator; later Apply calls fail with ErrFinalized.
func (a *Accumulator) Finalize() {
	a.finalized = true
}

// Finalized reports whether Finalize has been called.
func (a *Accumulator) Finalized() bool {
	return a.finalized
}

// Apply adds the overlap-weighted contribution of every span to the buckets.
//
// The chunk is applied all-or-nothing: if any span is malformed or yields a
// non-finite contribution, Apply returns a *ValidationError and no bucket changes.
func (a *Accumulator) Apply(spans []Span) error {
	if a.finalized {
		return ErrFinalized
	}

	n := len(a.values)
	lo, hi := n, 0

	for k := range spans {
		err := validate(k, spans[k])
		if err != nil {
			return err
		}

		first, last := bucketRange(spans[k], n)
		if first < last {
			lo = min(lo, first)
			hi = max(hi, last)
		}
	}

	if lo >= hi {
		return nil
	}

	stage, owners := a.stage(hi - lo)

	for k := range spans {
		span := &spans[k]
		first, last := bucketRange(*span, n)

		for i := first; i < last; i++ {
			contribution := span.Value * overlap(*span, i)
			if !stats.Finite(contribution) {
				return &ValidationError{Index: k, Span: *span, Reason: fmt.Sprintf("non-finite contribution to bucket %d", i)}
			}

			stage[i-lo] += contribution
			owners[i-lo] = k
		}
	}

	for j, delta := range stage {
		if !stats.Finite(a.values[lo+j] + delta) {
			k := owners[j]

			return &ValidationError{Index: k, Span: spans[k], Reason: fmt.Sprintf("bucket %d sum overflows", lo+j)}
		}
	}

	for j, delta := range stage {
		a.values[lo+j] += delta
	}

	return nil
}

// stage returns zeroed scratch sums and, per bucket, the index of the last
// span that contributed to it.
func (a *Accumulator) stage(size int) ([]float64, []int) {
	if cap(a.scratch) < size {
		a.scratch = make([]float64, size)
		a.owners = make([]int, size)
	}

	a.scratch = a.scratch[:size]
	a.owners = a.owners[:size]
	clear(a.scratch)

	return a.scratch, a.owners
}

func validate(k int, s Span) error {
	switch {
	case s.Start > s.End:
		return &ValidationError{Index: k, Span: s, Reason: "start after end"}
	case !stats.Finite(s.Value):
		return &ValidationError{Index: k, Span: s, Reason: "non-finite value"}
	case !stats.Finite(s.A) || !stats.Finite(s.B):
		return &ValidationError{Index: k, Span: s, Reason: "non-finite bounds"}
	case s.A > s.B:
		return &ValidationError{Index: k, Span: s, Reason: "normalized start after end"}
	}

	return nil
}

// bucketRange returns the half-open bucket index range [first, last) a span
// can touch, clamped to [0, n).
func bucketRange(s Span, n int) (first, last int) {
	first = int(stats.Clamp(math.Floor(s.A), 0, float64(n)))
	last = int(stats.Clamp(math.Ceil(s.B), 0, float64(n)))

	return first, last
}

// overlap is the fraction of bucket i's unit window covered by the span.
func overlap(s Span, i int) float64 {
	lo := float64(i)

	return stats.Clamp(min(s.B, lo+1)-max(s.A, lo), 0, 1)
}
