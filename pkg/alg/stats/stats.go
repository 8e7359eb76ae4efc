// Package stats provides small numeric helpers shared by the aggregation core
// and the runner's progress accounting.
package stats

import (
	"cmp"
	"math"
)

// Clamp restricts val to the range [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}

// Finite reports whether v is neither NaN nor an infinity.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CeilDiv returns ceil(num/den) for positive den.
func CeilDiv(num, den int64) int64 {
	q := num / den
	if num%den != 0 && (num > 0) == (den > 0) {
		q++
	}

	return q
}

// RunningMean tracks the arithmetic mean of a stream of observations
// without retaining them. The update is Welford's incremental form, which
// stays accurate over the many thousands of samples a long run produces.
type RunningMean struct {
	count int64
	mean  float64
}

// Add feeds one observation.
func (r *RunningMean) Add(v float64) {
	r.count++
	r.mean += (v - r.mean) / float64(r.count)
}

// Mean returns the current mean, or 0 before the first observation.
func (r *RunningMean) Mean() float64 {
	return r.mean
}

// Count returns the number of observations seen.
func (r *RunningMean) Count() int64 {
	return r.count
}
