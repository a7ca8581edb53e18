package formulas

import (
	"fmt"
	"math"
)

// SimpleReturns converts prices to period-over-period percentage returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]; a zero previous price emits
// 0 for that element instead of an infinity. Output length is len(prices)-1.
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// LogReturns converts prices to continuously compounded returns
// ln(Price[i+1]/Price[i]); a non-positive price on either side emits 0 for
// that element. Output length is len(prices)-1.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns[i-1] = math.Log(prices[i] / prices[i-1])
		}
	}
	return returns
}

// CumulativeReturns compounds a return series into a growth-of-initialValue
// series. The initial value is prepended, so the output has one more element
// than the input.
func CumulativeReturns(returns []float64, initialValue float64) []float64 {
	out := make([]float64, 0, len(returns)+1)
	out = append(out, initialValue)

	value := initialValue
	for _, r := range returns {
		value *= 1 + r
		out = append(out, value)
	}
	return out
}

// AnnualizedReturn computes the compound annual growth rate implied by a
// series of periodic returns.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
func AnnualizedReturn(returns []float64, periodsPerYear int) (float64, error) {
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("periods per year must be positive, got %d", periodsPerYear)
	}
	if len(returns) == 0 {
		return Degenerate, nil
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}

	exponent := float64(periodsPerYear) / float64(len(returns))
	return math.Pow(cumulative, exponent) - 1, nil
}
