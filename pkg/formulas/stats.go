// Package formulas provides pure statistical and risk calculations over price
// and return series. Every function is stateless and side-effect free: inputs
// are only read, nothing is cached, and repeated calls recompute from scratch.
//
// Degenerate numeric input (empty series, a single observation where n-1 is
// required, zero variance) yields the Degenerate sentinel instead of NaN or an
// error; callers rely on 0 meaning "no signal". Structural problems (mismatched
// series lengths in portfolio-level operations) and invalid configuration
// (confidence levels outside (0,1), non-positive periods per year) are
// reported as errors.
package formulas

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Degenerate is the value returned by scalar statistics when the input cannot
// support the calculation. It is deliberately 0, never NaN or an infinity.
const Degenerate = 0.0

// Defaults for the configuration scalars used across the package.
const (
	DefaultPeriodsPerYear  = 252 // daily series, trading days per year
	DefaultConfidenceLevel = 0.95
	DefaultInitialValue    = 1.0
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return Degenerate
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator).
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return Degenerate
	}
	return stat.StdDev(data, nil)
}

// PopStdDev calculates the population standard deviation (n denominator).
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return Degenerate
	}
	return stat.PopStdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values.
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return Degenerate
	}
	return stat.Variance(data, nil)
}

// Min returns the smallest value in the series.
func Min(data []float64) float64 {
	if len(data) == 0 {
		return Degenerate
	}
	min := data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest value in the series.
func Max(data []float64) float64 {
	if len(data) == 0 {
		return Degenerate
	}
	max := data[0]
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	return max
}

// Percentile returns the value at rank p in [0,1] using linear interpolation
// between the two nearest order statistics (index p*(n-1) on the ascending
// sort). A rank outside [0,1] is rejected with an error.
func Percentile(data []float64, p float64) (float64, error) {
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("percentile rank %v outside [0,1]", p)
	}
	if len(data) == 0 {
		return Degenerate, nil
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower], nil
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac, nil
}

// Skewness calculates the third standardized moment: the mean of
// ((x-mean)/stddev)^3, standardized by the population standard deviation.
func Skewness(data []float64) float64 {
	if len(data) < 2 {
		return Degenerate
	}

	mean := stat.Mean(data, nil)
	sd := stat.PopStdDev(data, nil)
	if sd == 0 {
		return Degenerate
	}

	var sum float64
	for _, x := range data {
		z := (x - mean) / sd
		sum += z * z * z
	}
	return sum / float64(len(data))
}

// Kurtosis calculates excess kurtosis: the mean of ((x-mean)/stddev)^4 minus 3,
// standardized by the population standard deviation. A normal distribution
// scores 0.
func Kurtosis(data []float64) float64 {
	if len(data) < 2 {
		return Degenerate
	}

	mean := stat.Mean(data, nil)
	sd := stat.PopStdDev(data, nil)
	if sd == 0 {
		return Degenerate
	}

	var sum float64
	for _, x := range data {
		z := (x - mean) / sd
		sum += z * z * z * z
	}
	return sum/float64(len(data)) - 3
}
