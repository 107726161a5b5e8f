package export

import (
	"github.com/nvr-ai/galton-goalie/histogram"
	"gonum.org/v1/gonum/stat/distuv"
)

// gaussianSamplesPerBucket is the resolution of the fitted curve.
const gaussianSamplesPerBucket = 10

// GaussianCurve samples the normal distribution fitted to counts, scaled so its area
// matches the total count with unit-wide buckets at positions 1..n. It returns nil when
// there are no counts or no spread.
func GaussianCurve(counts []uint64, stats histogram.Statistics) (xs, ys []float64) {
	if stats.Total == 0 || stats.StdDev <= 0 || len(counts) == 0 {
		return nil, nil
	}
	normal := distuv.Normal{Mu: stats.Mean, Sigma: stats.StdDev}

	n := len(counts) * gaussianSamplesPerBucket
	xs = make([]float64, 0, n+1)
	ys = make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		x := 0.5 + float64(i)/gaussianSamplesPerBucket
		xs = append(xs, x)
		ys = append(ys, float64(stats.Total)*normal.Prob(x))
	}
	return xs, ys
}
