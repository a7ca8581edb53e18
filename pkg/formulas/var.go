package formulas

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

func validateConfidence(confidence float64) error {
	if confidence <= 0 || confidence >= 1 {
		return fmt.Errorf("confidence level %v outside (0,1)", confidence)
	}
	return nil
}

// HistoricalVaR calculates value at risk from the empirical return
// distribution: the return at index floor(n*(1-confidence)) of the ascending
// sort, negated so that a loss reports as a positive magnitude. Callers must
// not negate the result again.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if len(returns) == 0 {
		return Degenerate, nil
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * (1 - confidence)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return -sorted[idx], nil
}

// HistoricalCVaR calculates conditional value at risk: the mean of the sorted
// returns strictly below the VaR cutoff index, negated to a positive loss
// magnitude. With the cutoff at index 0 the tail is empty and 0 is returned.
func HistoricalCVaR(returns []float64, confidence float64) (float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if len(returns) == 0 {
		return Degenerate, nil
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	cutoff := int(math.Floor(float64(len(sorted)) * (1 - confidence)))
	if cutoff <= 0 {
		return Degenerate, nil
	}
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	return -Mean(sorted[:cutoff]), nil
}

// MonteCarloVaR estimates value at risk by sampling per-period returns from a
// normal distribution with the given mean and standard deviation, then taking
// the historical VaR of the simulated sample. Pass a non-nil src for
// reproducible draws.
func MonteCarloVaR(mean, stdDev, confidence float64, simulations int, src rand.Source) (float64, error) {
	samples, err := simulateNormalReturns(mean, stdDev, simulations, src)
	if err != nil {
		return 0, err
	}
	return HistoricalVaR(samples, confidence)
}

// MonteCarloCVaR estimates conditional value at risk from the same simulated
// sample construction as MonteCarloVaR.
func MonteCarloCVaR(mean, stdDev, confidence float64, simulations int, src rand.Source) (float64, error) {
	samples, err := simulateNormalReturns(mean, stdDev, simulations, src)
	if err != nil {
		return 0, err
	}
	return HistoricalCVaR(samples, confidence)
}

func simulateNormalReturns(mean, stdDev float64, simulations int, src rand.Source) ([]float64, error) {
	if simulations <= 0 {
		return nil, fmt.Errorf("simulation count must be positive, got %d", simulations)
	}
	if stdDev < 0 {
		return nil, fmt.Errorf("standard deviation must be non-negative, got %v", stdDev)
	}

	normal := distuv.Normal{Mu: mean, Sigma: stdDev, Src: src}
	samples := make([]float64, simulations)
	for i := range samples {
		samples[i] = normal.Rand()
	}
	return samples, nil
}
