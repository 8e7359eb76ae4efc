package report

import (
	"math"

	"github.com/Sumatoshi-tech/hostload/pkg/alg/stats"
	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
)

// Summary holds aggregate statistics of a series value column.
type Summary struct {
	Buckets int     `json:"buckets"`
	NonZero int     `json:"non_zero"`
	Mean    float64 `json:"mean"`
	Peak    float64 `json:"peak"`
	// PeakStart is the start time of the first bucket holding Peak.
	PeakStart int64 `json:"peak_start"`
}

// Summarize computes the summary of a series matrix.
func Summarize(m *artifact.Matrix) Summary {
	if m.Cols != artifact.SeriesCols || m.Rows == 0 {
		return Summary{Buckets: m.Rows}
	}

	var mean stats.RunningMean

	sum := Summary{Buckets: m.Rows, Peak: math.Inf(-1)}

	for i := range m.Rows {
		value := m.At(i, artifact.ValueColumn)
		mean.Add(value)

		if value != 0 {
			sum.NonZero++
		}

		if value > sum.Peak {
			sum.Peak = value
			sum.PeakStart = int64(m.At(i, artifact.TimeColumn))
		}
	}

	sum.Mean = mean.Mean()

	return sum
}
