package formulas

import (
	"fmt"
	"math"
)

// periodicRate converts an annual rate to its per-period equivalent through
// compounding: (1+annual)^(1/periodsPerYear) - 1.
func periodicRate(annualRate float64, periodsPerYear int) float64 {
	return math.Pow(1+annualRate, 1/float64(periodsPerYear)) - 1
}

// Volatility calculates the sample standard deviation of a return series,
// scaled by sqrt(periodsPerYear) when annualized.
func Volatility(returns []float64, periodsPerYear int, annualized bool) (float64, error) {
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("periods per year must be positive, got %d", periodsPerYear)
	}

	sd := StdDev(returns)
	if annualized {
		sd *= math.Sqrt(float64(periodsPerYear))
	}
	return sd, nil
}

// SharpeRatio calculates the annualized excess return per unit of volatility.
// The annual risk-free rate is converted to a per-period rate by compounding,
// excess returns are taken against it, and both mean and deviation are
// annualized. Returns 0 when the excess-return volatility is 0.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) (float64, error) {
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("periods per year must be positive, got %d", periodsPerYear)
	}
	if len(returns) == 0 {
		return Degenerate, nil
	}

	rfPerPeriod := periodicRate(riskFreeRate, periodsPerYear)
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rfPerPeriod
	}

	annualizedVol := StdDev(excess) * math.Sqrt(float64(periodsPerYear))
	if annualizedVol == 0 {
		return Degenerate, nil
	}

	return Mean(excess) * float64(periodsPerYear) / annualizedVol, nil
}

// SortinoRatio calculates excess return over the target per unit of downside
// deviation, where only returns below the target contribute to the deviation.
// With no observations below the target the ratio is unbounded and the
// positive-infinity sentinel is returned, not an error.
func SortinoRatio(returns []float64, targetReturn float64, periodsPerYear int) (float64, error) {
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("periods per year must be positive, got %d", periodsPerYear)
	}
	if len(returns) == 0 {
		return Degenerate, nil
	}

	var sumSq float64
	count := 0
	for _, r := range returns {
		if r < targetReturn {
			d := r - targetReturn
			sumSq += d * d
			count++
		}
	}
	if count == 0 {
		return math.Inf(1), nil
	}

	downsideDev := math.Sqrt(sumSq / float64(count))
	return (Mean(returns) - targetReturn) * math.Sqrt(float64(periodsPerYear)) / downsideDev, nil
}

// CalmarRatio calculates annualized return over the magnitude of the maximum
// drawdown of the compounded series. Returns 0 when there is no drawdown.
func CalmarRatio(returns []float64, periodsPerYear int) (float64, error) {
	annualized, err := AnnualizedReturn(returns, periodsPerYear)
	if err != nil {
		return 0, err
	}

	maxDD := MaxDrawdown(CumulativeReturns(returns, DefaultInitialValue))
	if maxDD == 0 {
		return Degenerate, nil
	}

	return annualized / math.Abs(maxDD), nil
}

// OmegaRatio calculates the ratio of total gains above the threshold to total
// losses below it. With gains but no losses the ratio is unbounded and the
// positive-infinity sentinel is returned; with neither gains nor losses the
// result is 0.
func OmegaRatio(returns []float64, threshold float64) float64 {
	if len(returns) == 0 {
		return Degenerate
	}

	var gains, losses float64
	for _, r := range returns {
		if r > threshold {
			gains += r - threshold
		} else if r < threshold {
			losses += threshold - r
		}
	}

	if losses == 0 {
		if gains == 0 {
			return Degenerate
		}
		return math.Inf(1)
	}
	return gains / losses
}
