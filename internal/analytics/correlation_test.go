package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P3 — the correlation matrix is symmetric with a 1.0 diagonal.
func TestCorrelationMatrix_DiagonalAndSymmetry(t *testing.T) {
	histories := []SeriesHistory{
		{SeriesKey: "A", Values: []float64{1, 2, 3, 4, 5, 6}},
		{SeriesKey: "B", Values: []float64{2, 4, 6, 8, 10, 12}},
		{SeriesKey: "C", Values: []float64{6, 5, 4, 3, 2, 1}},
	}

	snap := CorrelationMatrix("60d", histories)

	require.Len(t, snap.Matrix, 3)
	for i := range snap.Matrix {
		require.NotNil(t, snap.Matrix[i][i])
		assert.InDelta(t, 1.0, *snap.Matrix[i][i], 1e-9)
	}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if snap.Matrix[i][j] == nil || snap.Matrix[j][i] == nil {
				assert.Equal(t, snap.Matrix[i][j] == nil, snap.Matrix[j][i] == nil)
				continue
			}
			assert.InDelta(t, *snap.Matrix[i][j], *snap.Matrix[j][i], 1e-9)
		}
	}
}

func TestCorrelationMatrix_PerfectPositiveCorrelation(t *testing.T) {
	histories := []SeriesHistory{
		{SeriesKey: "A", Values: []float64{1, 2, 3, 4, 5}},
		{SeriesKey: "B", Values: []float64{10, 20, 30, 40, 50}},
	}
	snap := CorrelationMatrix("60d", histories)
	require.NotNil(t, snap.Matrix[0][1])
	assert.InDelta(t, 1.0, *snap.Matrix[0][1], 1e-9)
}

// Thin overlap must yield a null cell, never a fabricated 0.
func TestCorrelationMatrix_InsufficientOverlapIsNull(t *testing.T) {
	histories := []SeriesHistory{
		{SeriesKey: "A", Values: []float64{1, 2}},
		{SeriesKey: "B", Values: []float64{3, 4}},
	}
	snap := CorrelationMatrix("60d", histories)
	assert.Nil(t, snap.Matrix[0][1])
}
