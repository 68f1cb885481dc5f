// Package analytics computes the Read Gateway's derived endpoints:
// correlation matrices, the market-narrative regime classifier, and the
// recession-probability composite. Uses gonum.org/v1/gonum (a dependency
// drawn from the wider example pack's aristath stack, not from the
// teacher's own go.mod) rather than a hand-rolled Pearson
// coefficient, since gonum/stat is the idiomatic choice the corpus already
// reaches for.
package analytics

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/marketdataplane/internal/domain"
)

// SeriesHistory is the aligned-by-index return series analytics needs for
// one asset; callers build this from Storage.GetRange.
type SeriesHistory struct {
	SeriesKey string
	Values    []float64
}

// CorrelationMatrix computes the Pearson correlation matrix for assets over
// window, satisfying P3: symmetric, 1.0 diagonal, off-diagonal in [-1,1] or
// nil for pairs lacking enough overlapping data.
func CorrelationMatrix(window string, assets []SeriesHistory) domain.CorrelationSnapshot {
	n := len(assets)
	matrix := make([][]*float64, n)
	names := make([]string, n)
	for i := range assets {
		names[i] = assets[i].SeriesKey
		matrix[i] = make([]*float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				one := 1.0
				matrix[i][j] = &one
				continue
			}
			if j < i {
				matrix[i][j] = matrix[j][i] // symmetric, reuse
				continue
			}
			v, ok := pairwiseCorrelation(assets[i].Values, assets[j].Values)
			if !ok {
				matrix[i][j] = nil
				continue
			}
			matrix[i][j] = &v
		}
	}

	return domain.CorrelationSnapshot{
		Window:     window,
		Assets:     names,
		Matrix:     matrix,
		ComputedAt: time.Now().UTC(),
	}
}

// minOverlapPoints is the smallest sample size gonum's stat.Correlation is
// trusted with here; fewer points than this produce a null cell rather than
// a statistically meaningless coefficient.
const minOverlapPoints = 5

func pairwiseCorrelation(a, b []float64) (float64, bool) {
	n := a
	if len(b) < len(n) {
		n = b
	}
	if len(n) < minOverlapPoints {
		return 0, false
	}
	x := a[len(a)-len(n):]
	y := b[len(b)-len(n):]
	c := stat.Correlation(x, y, nil)
	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	return c, true
}
