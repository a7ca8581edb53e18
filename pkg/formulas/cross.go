package formulas

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Covariance calculates the sample covariance (n-1 denominator) between two
// equal-length series. Mismatched lengths or fewer than two observations
// return 0, not an error.
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return Degenerate
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient between two
// equal-length series. Mismatched lengths or a zero standard deviation on
// either side return 0, not an error.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return Degenerate
	}
	if StdDev(x) == 0 || StdDev(y) == 0 {
		return Degenerate
	}
	return stat.Correlation(x, y, nil)
}

// Beta calculates the sensitivity of an asset's returns to a benchmark's:
// cov(asset, benchmark) / var(benchmark). A zero benchmark variance or a
// length mismatch returns 0.
func Beta(asset, benchmark []float64) float64 {
	if len(asset) < 2 || len(asset) != len(benchmark) {
		return Degenerate
	}

	benchVar := Variance(benchmark)
	if benchVar == 0 {
		return Degenerate
	}
	return Covariance(asset, benchmark) / benchVar
}

// Alpha calculates the annualized residual return of an asset over the
// benchmark after adjusting for beta. The per-period alpha
// (assetMean - rf - beta*(benchmarkMean - rf), with rf converted to the period
// frequency) is annualized by compounding. A length mismatch returns 0.
func Alpha(asset, benchmark []float64, riskFreeRate float64, periodsPerYear int) (float64, error) {
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("periods per year must be positive, got %d", periodsPerYear)
	}
	if len(asset) == 0 || len(asset) != len(benchmark) {
		return Degenerate, nil
	}

	rfPerPeriod := periodicRate(riskFreeRate, periodsPerYear)
	beta := Beta(asset, benchmark)
	perPeriod := Mean(asset) - rfPerPeriod - beta*(Mean(benchmark)-rfPerPeriod)

	return math.Pow(1+perPeriod, float64(periodsPerYear)) - 1, nil
}
