package bucket

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func unitWindow(t *testing.T, n int64) Window {
	t.Helper()

	w, err := NewWindow(0, n, 1)
	require.NoError(t, err)

	return w
}

func newAcc(t *testing.T, w Window) *Accumulator {
	t.Helper()

	acc, err := New(w)
	require.NoError(t, err)

	return acc
}

func TestApply_WholeWindowInterval(t *testing.T) {
	t.Parallel()

	w := unitWindow(t, 5)
	acc := newAcc(t, w)

	require.NoError(t, acc.Apply([]Span{w.Normalize(10, 0, 5)}))

	if diff := cmp.Diff([]float64{10, 10, 10, 10, 10}, acc.Values(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_StraddlingInterval(t *testing.T) {
	t.Parallel()

	acc := newAcc(t, unitWindow(t, 4))

	require.NoError(t, acc.Apply([]Span{{Value: 4, A: 0.5, B: 1.5, Start: 0, End: 1}}))

	if diff := cmp.Diff([]float64{2, 2, 0, 0}, acc.Values(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_InsideSingleBucket(t *testing.T) {
	t.Parallel()

	w, err := NewWindow(1000, 2000, 100)
	require.NoError(t, err)

	acc := newAcc(t, w)

	spans := []Span{
		w.Normalize(3, 1210, 1235),
		w.Normalize(5, 1250, 1300),
	}

	require.NoError(t, acc.Apply(spans))

	want := make([]float64, 10)
	want[2] = 3*0.25 + 5*0.5

	if diff := cmp.Diff(want, acc.Values(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_SplitLinearity(t *testing.T) {
	t.Parallel()

	w, err := NewWindow(0, 10_000, 137)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))

	for range 200 {
		start := rng.Int64N(12_000) - 1_000
		end := start + rng.Int64N(3_000)
		cut := start
		if end > start {
			cut = start + rng.Int64N(end-start+1)
		}

		value := rng.Float64() * 100

		whole := newAcc(t, w)
		require.NoError(t, whole.Apply([]Span{w.Normalize(value, start, end)}))

		split := newAcc(t, w)
		require.NoError(t, split.Apply([]Span{w.Normalize(value, start, cut)}))
		require.NoError(t, split.Apply([]Span{w.Normalize(value, cut, end)}))

		if diff := cmp.Diff(whole.Values(), split.Values(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Fatalf("split [%d,%d)+[%d,%d) differs (-whole +split):\n%s", start, cut, cut, end, diff)
		}
	}
}

func TestApply_OutsideWindowContributesNothing(t *testing.T) {
	t.Parallel()

	w, err := NewWindow(100, 200, 10)
	require.NoError(t, err)

	acc := newAcc(t, w)

	spans := []Span{
		w.Normalize(7, 0, 50),
		w.Normalize(7, 250, 300),
		w.Normalize(7, 0, 100),
		w.Normalize(7, 200, 300),
	}

	require.NoError(t, acc.Apply(spans))
	assert.Equal(t, make([]float64, 10), acc.Values())
}

func TestApply_HalfOpenBoundary(t *testing.T) {
	t.Parallel()

	w := unitWindow(t, 4)

	t.Run("interior_edge", func(t *testing.T) {
		t.Parallel()

		acc := newAcc(t, w)
		require.NoError(t, acc.Apply([]Span{w.Normalize(6, 1, 2)}))

		if diff := cmp.Diff([]float64{0, 6, 0, 0}, acc.Values(), approx); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("window_end_edge", func(t *testing.T) {
		t.Parallel()

		acc := newAcc(t, w)
		require.NoError(t, acc.Apply([]Span{w.Normalize(6, 3, 4)}))

		if diff := cmp.Diff([]float64{0, 0, 0, 6}, acc.Values(), approx); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("zero_length", func(t *testing.T) {
		t.Parallel()

		acc := newAcc(t, w)
		require.NoError(t, acc.Apply([]Span{w.Normalize(6, 2, 2)}))
		assert.Equal(t, make([]float64, 4), acc.Values())
	})
}

func TestApply_PartialLastBucket(t *testing.T) {
	t.Parallel()

	w, err := NewWindow(0, 25, 10)
	require.NoError(t, err)
	require.Equal(t, 3, w.Len())

	acc := newAcc(t, w)
	require.NoError(t, acc.Apply([]Span{w.Normalize(8, 0, 100)}))

	if diff := cmp.Diff([]float64{8, 8, 4}, acc.Values(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_AccumulatesAcrossChunks(t *testing.T) {
	t.Parallel()

	w := unitWindow(t, 3)
	acc := newAcc(t, w)

	require.NoError(t, acc.Apply([]Span{w.Normalize(1, 0, 3)}))
	require.NoError(t, acc.Apply([]Span{w.Normalize(2, 1, 2)}))

	if diff := cmp.Diff([]float64{1, 3, 1}, acc.Values(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_RejectsChunkAtomically(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bad    Span
		reason string
	}{
		{name: "inverted", bad: Span{Value: 1, A: 1, B: 2, Start: 5, End: 3}, reason: "start after end"},
		{name: "nan_value", bad: Span{Value: math.NaN(), A: 1, B: 2, Start: 1, End: 2}, reason: "non-finite value"},
		{name: "inf_value", bad: Span{Value: math.Inf(1), A: 1, B: 2, Start: 1, End: 2}, reason: "non-finite value"},
		{name: "nan_bound", bad: Span{Value: 1, A: math.NaN(), B: 2, Start: 1, End: 2}, reason: "non-finite bounds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := unitWindow(t, 4)
			acc := newAcc(t, w)
			require.NoError(t, acc.Apply([]Span{w.Normalize(1, 0, 4)}))

			before := acc.Values()

			err := acc.Apply([]Span{w.Normalize(5, 0, 2), tt.bad, w.Normalize(5, 2, 4)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInterval))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, 1, verr.Index)
			assert.Equal(t, tt.reason, verr.Reason)
			assert.Contains(t, err.Error(), "record 1")

			assert.Equal(t, before, acc.Values())
		})
	}
}

func TestApply_OverflowLeavesValuesUntouched(t *testing.T) {
	t.Parallel()

	w := unitWindow(t, 2)
	acc := newAcc(t, w)

	require.NoError(t, acc.Apply([]Span{w.Normalize(math.MaxFloat64, 0, 1)}))

	err := acc.Apply([]Span{w.Normalize(1, 1, 2), w.Normalize(math.MaxFloat64, 0, 1)})
	require.ErrorIs(t, err, ErrInvalidInterval)
	assert.Equal(t, []float64{math.MaxFloat64, 0}, acc.Values())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, vErr.Index)
	assert.Equal(t, int64(0), vErr.Span.Start)
	assert.Equal(t, int64(1), vErr.Span.End)
	assert.Contains(t, err.Error(), "record 1 (value=1.7976931348623157e+308 start=0 end=1): bucket 0 sum overflows")
}

func TestApply_EmptyChunk(t *testing.T) {
	t.Parallel()

	acc := newAcc(t, unitWindow(t, 2))
	require.NoError(t, acc.Apply(nil))
	assert.Equal(t, []float64{0, 0}, acc.Values())
}

func TestApply_AfterFinalize(t *testing.T) {
	t.Parallel()

	w := unitWindow(t, 2)
	acc := newAcc(t, w)
	acc.Finalize()

	assert.True(t, acc.Finalized())
	require.ErrorIs(t, acc.Apply([]Span{w.Normalize(1, 0, 1)}), ErrFinalized)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	w := unitWindow(t, 3)

	acc, err := Restore(w, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, acc.At(1), 1e-12)
	assert.Equal(t, 3, acc.Len())

	_, err = Restore(w, []float64{1, 2})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestValuesReturnsCopy(t *testing.T) {
	t.Parallel()

	acc := newAcc(t, unitWindow(t, 2))
	values := acc.Values()
	values[0] = 42

	assert.Zero(t, acc.At(0))
}
