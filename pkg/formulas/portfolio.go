package formulas

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// sortedSymbols returns the keys of a weight map in lexical order so that
// accumulation order is deterministic.
func sortedSymbols(weights map[string]float64) []string {
	symbols := make([]string, 0, len(weights))
	for symbol := range weights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// PortfolioReturns computes the weighted sum of per-asset returns for each
// period. Every weighted symbol must have a return series and all series must
// have the same length; violations are reported as errors, never silently
// truncated. Symbols present in the returns map without a weight are ignored.
func PortfolioReturns(returnsBySymbol map[string][]float64, weights map[string]float64) ([]float64, error) {
	symbols := sortedSymbols(weights)

	length := -1
	for _, symbol := range symbols {
		series, ok := returnsBySymbol[symbol]
		if !ok {
			return nil, fmt.Errorf("no return series for weighted symbol %q", symbol)
		}
		if length == -1 {
			length = len(series)
		} else if len(series) != length {
			return nil, fmt.Errorf("return series length mismatch for %q: have %d, want %d", symbol, len(series), length)
		}
	}
	if length <= 0 {
		return []float64{}, nil
	}

	out := make([]float64, length)
	for _, symbol := range symbols {
		weight := weights[symbol]
		for i, r := range returnsBySymbol[symbol] {
			out[i] += weight * r
		}
	}
	return out, nil
}

// NormalizeWeights divides each weight by the sum of all weights so they sum
// to 1. A zero sum leaves the weights unchanged. The input map is never
// mutated; a fresh map is returned either way.
func NormalizeWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))

	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		for symbol, w := range weights {
			out[symbol] = w
		}
		return out
	}

	for symbol, w := range weights {
		out[symbol] = w / sum
	}
	return out
}

// CovarianceMatrix builds the sample covariance matrix of the given symbols'
// return series, in symbol order. All series must exist, agree in length, and
// hold at least two observations.
func CovarianceMatrix(returnsBySymbol map[string][]float64, symbols []string) ([][]float64, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols given")
	}

	series := make([][]float64, len(symbols))
	length := -1
	for i, symbol := range symbols {
		s, ok := returnsBySymbol[symbol]
		if !ok {
			return nil, fmt.Errorf("no return series for symbol %q", symbol)
		}
		if length == -1 {
			length = len(s)
		} else if len(s) != length {
			return nil, fmt.Errorf("return series length mismatch for %q: have %d, want %d", symbol, len(s), length)
		}
		series[i] = s
	}
	if length < 2 {
		return nil, fmt.Errorf("need at least 2 observations per series, got %d", length)
	}

	n := len(symbols)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(series[i], series[j], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}
	return cov, nil
}

// RiskContribution decomposes portfolio risk into per-asset shares. Weights
// are normalized, the covariance matrix is built over the weighted symbols,
// portfolio variance is wᵀΣw, the marginal contribution of asset i is
// (Σw)_i / volatility, and each asset's contribution weight_i * marginal_i is
// normalized so the contributions sum to 1.
//
// A portfolio with zero volatility returns an empty map, not a zero-filled
// one: callers iterating assets must treat a missing key as zero contribution.
func RiskContribution(returnsBySymbol map[string][]float64, weights map[string]float64) (map[string]float64, error) {
	normalized := NormalizeWeights(weights)
	symbols := sortedSymbols(normalized)
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	cov, err := CovarianceMatrix(returnsBySymbol, symbols)
	if err != nil {
		return nil, err
	}

	w := make([]float64, len(symbols))
	for i, symbol := range symbols {
		w[i] = normalized[symbol]
	}

	// Σw and portfolio variance wᵀΣw.
	sigmaW := make([]float64, len(symbols))
	variance := 0.0
	for i := range symbols {
		for j := range symbols {
			sigmaW[i] += cov[i][j] * w[j]
		}
		variance += w[i] * sigmaW[i]
	}
	if variance <= 0 {
		return map[string]float64{}, nil
	}
	volatility := math.Sqrt(variance)

	contributions := make(map[string]float64, len(symbols))
	total := 0.0
	for i, symbol := range symbols {
		rc := w[i] * (sigmaW[i] / volatility)
		contributions[symbol] = rc
		total += rc
	}
	for symbol := range contributions {
		contributions[symbol] /= total
	}
	return contributions, nil
}

// CorrelationMatrixFromCovariance converts a covariance matrix to the
// corresponding correlation matrix: corr(i,j) = cov(i,j)/sqrt(var_i*var_j),
// clamped to [-1,1].
func CorrelationMatrixFromCovariance(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("covariance matrix is not square")
		}
	}

	vars := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov[i][i]
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid variance on diagonal at %d: %v", i, v)
		}
		vars[i] = v
	}

	corr := make([][]float64, n)
	for i := 0; i < n; i++ {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			val := cov[i][j] / math.Sqrt(vars[i]*vars[j])
			val = math.Max(-1.0, math.Min(1.0, val))
			corr[i][j] = val
			corr[j][i] = val
		}
	}
	return corr, nil
}

// LedoitWolfShrinkage shrinks a sample covariance matrix toward a constant
// correlation target (average variance on the diagonal, average covariance off
// it) with the given intensity in [0,1]. Shrinkage conditions the matrix when
// the observation count is small relative to the asset count.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for
// large-dimensional covariance matrices"
func LedoitWolfShrinkage(cov [][]float64, shrinkage float64) ([][]float64, error) {
	if shrinkage < 0 || shrinkage > 1 {
		return nil, fmt.Errorf("shrinkage intensity %v outside [0,1]", shrinkage)
	}
	n := len(cov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("covariance matrix is not square")
		}
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += cov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += cov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				target.Set(i, j, avgVar)
			} else {
				target.Set(i, j, avgCov)
			}
		}
	}

	sample := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sample.Set(i, j, cov[i][j])
		}
	}

	// Σ_shrunk = (1-δ)·Σ_sample + δ·Σ_target
	var shrunk mat.Dense
	shrunk.Scale(1-shrinkage, sample)
	var scaledTarget mat.Dense
	scaledTarget.Scale(shrinkage, target)
	shrunk.Add(&shrunk, &scaledTarget)

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = shrunk.At(i, j)
		}
	}
	return out, nil
}

// InverseVarianceWeights derives portfolio weights proportional to the inverse
// of each symbol's variance (the covariance matrix diagonal), normalized to
// sum to 1. When every variance is degenerate the weights fall back to equal
// weighting.
func InverseVarianceWeights(cov [][]float64, symbols []string) (map[string]float64, error) {
	n := len(symbols)
	if n == 0 {
		return nil, fmt.Errorf("no symbols given")
	}
	if len(cov) != n {
		return nil, fmt.Errorf("covariance matrix size %d does not match %d symbols", len(cov), n)
	}
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("covariance matrix is not square")
		}
	}

	var totalInv float64
	for i := 0; i < n; i++ {
		if cov[i][i] > 0 {
			totalInv += 1.0 / cov[i][i]
		}
	}

	weights := make(map[string]float64, n)
	if totalInv == 0 {
		for _, symbol := range symbols {
			weights[symbol] = 1.0 / float64(n)
		}
		return weights, nil
	}

	for i, symbol := range symbols {
		if cov[i][i] > 0 {
			weights[symbol] = (1.0 / cov[i][i]) / totalInv
		} else {
			weights[symbol] = 0
		}
	}
	return weights, nil
}
