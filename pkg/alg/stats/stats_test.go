package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		val, lo, hi float64
		expected    float64
	}{
		{name: "within_range", val: 0.5, lo: 0.0, hi: 1.0, expected: 0.5},
		{name: "below_min", val: -1.0, lo: 0.0, hi: 1.0, expected: 0.0},
		{name: "above_max", val: 15.0, lo: 0.0, hi: 1.0, expected: 1.0},
		{name: "at_min", val: 0.0, lo: 0.0, hi: 1.0, expected: 0.0},
		{name: "at_max", val: 1.0, lo: 0.0, hi: 1.0, expected: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.expected, Clamp(tt.val, tt.lo, tt.hi), 1e-12)
		})
	}
}

func TestFinite(t *testing.T) {
	t.Parallel()

	assert.True(t, Finite(0))
	assert.True(t, Finite(-1e300))
	assert.False(t, Finite(math.NaN()))
	assert.False(t, Finite(math.Inf(1)))
	assert.False(t, Finite(math.Inf(-1)))
}

func TestCeilDiv(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(5), CeilDiv(5, 1))
	assert.Equal(t, int64(3), CeilDiv(5, 2))
	assert.Equal(t, int64(2), CeilDiv(4, 2))
	assert.Equal(t, int64(0), CeilDiv(0, 7))
	assert.Equal(t, int64(41761), CeilDiv(2506200000001-600000000, 60000000))
}

func TestRunningMean(t *testing.T) {
	t.Parallel()

	var rm RunningMean

	assert.Zero(t, rm.Mean())
	assert.Zero(t, rm.Count())

	for _, v := range []float64{2, 4, 6, 8} {
		rm.Add(v)
	}

	assert.InDelta(t, 5.0, rm.Mean(), 1e-12)
	assert.Equal(t, int64(4), rm.Count())
}
