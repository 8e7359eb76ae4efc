// Package artifact persists the aggregated time series as a named
// two-dimensional float64 dataset, rewritten atomically on every flush.
package artifact

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
)

// Series layout: column 0 holds bucket start times, column 1 the values.
const (
	TimeColumn  = 0
	ValueColumn = 1
	SeriesCols  = 2
)

// Sentinel errors.
var (
	// ErrArtifactIO is matched by every artifact read or write failure.
	ErrArtifactIO = errors.New("artifact I/O")
	// ErrNotFound indicates that no dataset with the requested name exists.
	ErrNotFound = errors.New("dataset not found")
	// ErrCorrupt indicates a truncated or checksum-mismatched artifact.
	ErrCorrupt = errors.New("artifact corrupt")
	// ErrShapeMismatch indicates a dataset that does not match the analysis window.
	ErrShapeMismatch = errors.New("dataset shape mismatch")
	// ErrUnknownBackend indicates an unsupported storage backend name.
	ErrUnknownBackend = errors.New("unknown artifact backend")
)

// IOError is a failed storage operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is matches ErrArtifactIO.
func (e *IOError) Is(target error) bool { return target == ErrArtifactIO }

// Matrix is a row-major float64 dataset.
type Matrix struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// NewSeries builds the (n,2) dataset for values aggregated over w.
func NewSeries(name string, w bucket.Window, values []float64) (*Matrix, error) {
	n := w.Len()
	if len(values) != n {
		return nil, fmt.Errorf("%w: %d values for %d buckets", ErrShapeMismatch, len(values), n)
	}

	m := &Matrix{Name: name, Rows: n, Cols: SeriesCols, Data: make([]float64, n*SeriesCols)}

	for i, v := range values {
		m.Data[i*SeriesCols+TimeColumn] = float64(w.BucketStart(i))
		m.Data[i*SeriesCols+ValueColumn] = v
	}

	return m, nil
}

// Validate checks that Data holds exactly Rows*Cols values.
func (m *Matrix) Validate() error {
	if m.Rows < 0 || m.Cols < 0 || len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("%w: %d values for %dx%d", ErrShapeMismatch, len(m.Data), m.Rows, m.Cols)
	}

	return nil
}

// At returns the value at row r, column c.
func (m *Matrix) At(r, c int) float64 {
	return m.Data[r*m.Cols+c]
}

// Column copies column c.
func (m *Matrix) Column(c int) []float64 {
	col := make([]float64, m.Rows)
	for r := range col {
		col[r] = m.At(r, c)
	}

	return col
}

// SeriesValues checks that m is the series of w and returns its value column.
func SeriesValues(m *Matrix, w bucket.Window) ([]float64, error) {
	n := w.Len()
	if m.Rows != n || m.Cols != SeriesCols {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShapeMismatch, m.Rows, m.Cols, n, SeriesCols)
	}

	for i := range n {
		if m.At(i, TimeColumn) != float64(w.BucketStart(i)) {
			return nil, fmt.Errorf("%w: row %d starts at %g, want %d",
				ErrShapeMismatch, i, m.At(i, TimeColumn), w.BucketStart(i))
		}
	}

	return m.Column(ValueColumn), nil
}
