package risk

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(Defaults{
		RiskFreeRate:    0.02,
		PeriodsPerYear:  252,
		ConfidenceLevel: 0.95,
	}, zerolog.Nop())
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestMetrics(t *testing.T) {
	s := newTestService()

	// ppy=1 keeps annualization inert so every field is checkable by hand.
	metrics, err := s.Metrics([]float64{0.10, -0.10}, nil, Params{
		RiskFreeRate:    floatPtr(0),
		PeriodsPerYear:  intPtr(1),
		ConfidenceLevel: floatPtr(0.95),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, metrics.Count)
	assert.InDelta(t, 0.0, metrics.MeanReturn, 1e-9)
	assert.InDelta(t, math.Sqrt(0.02), metrics.Volatility, 1e-9)
	assert.InDelta(t, math.Sqrt(0.02), metrics.AnnualizedVolatility, 1e-9)
	// (1.1 * 0.9)^(1/2) - 1
	assert.InDelta(t, math.Sqrt(0.99)-1, metrics.AnnualizedReturn, 1e-9)
	assert.InDelta(t, 0.0, metrics.Sharpe, 1e-9)
	require.NotNil(t, metrics.Sortino)
	assert.InDelta(t, 0.0, *metrics.Sortino, 1e-9)
	assert.InDelta(t, (math.Sqrt(0.99)-1)/0.1, metrics.Calmar, 1e-9)
	require.NotNil(t, metrics.Omega)
	assert.InDelta(t, 1.0, *metrics.Omega, 1e-9)
	assert.InDelta(t, 0.10, metrics.VaR, 1e-9)
	assert.InDelta(t, 0.0, metrics.CVaR, 1e-9)
	assert.InDelta(t, -0.10, metrics.MaxDrawdown, 1e-9)
	assert.Nil(t, metrics.Benchmark)
}

func TestMetrics_DefaultsApplied(t *testing.T) {
	s := newTestService()

	metrics, err := s.Metrics([]float64{0.01, -0.02, 0.015}, nil, Params{})
	require.NoError(t, err)

	assert.Equal(t, 0.02, metrics.Params.RiskFreeRate)
	assert.Equal(t, 252, metrics.Params.PeriodsPerYear)
	assert.Equal(t, 0.95, metrics.Params.ConfidenceLevel)
}

func TestMetrics_OverridesApplied(t *testing.T) {
	s := newTestService()

	metrics, err := s.Metrics([]float64{0.01, -0.02, 0.015}, nil, Params{
		RiskFreeRate:    floatPtr(0),
		PeriodsPerYear:  intPtr(12),
		ConfidenceLevel: floatPtr(0.99),
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, metrics.Params.RiskFreeRate)
	assert.Equal(t, 12, metrics.Params.PeriodsPerYear)
	assert.Equal(t, 0.99, metrics.Params.ConfidenceLevel)
}

func TestMetrics_EmptyReturns(t *testing.T) {
	s := newTestService()

	metrics, err := s.Metrics(nil, nil, Params{})
	require.NoError(t, err)

	assert.Equal(t, 0, metrics.Count)
	assert.Equal(t, 0.0, metrics.Volatility)
	assert.Equal(t, 0.0, metrics.Sharpe)
	assert.Equal(t, 0.0, metrics.VaR)
	assert.Equal(t, 0.0, metrics.MaxDrawdown)
}

func TestMetrics_NoDownside(t *testing.T) {
	s := newTestService()

	metrics, err := s.Metrics([]float64{0.01, 0.02, 0.03}, nil, Params{})
	require.NoError(t, err)

	// Sortino and Omega are unbounded without losing periods; they are
	// dropped rather than serialized as +Inf.
	assert.Nil(t, metrics.Sortino)
	assert.Nil(t, metrics.Omega)
}

func TestMetrics_WithBenchmark(t *testing.T) {
	s := newTestService()

	returns := []float64{0.01, 0.02, -0.01, 0.03}
	metrics, err := s.Metrics(returns, returns, Params{})
	require.NoError(t, err)

	require.NotNil(t, metrics.Benchmark)
	assert.InDelta(t, 1.0, metrics.Benchmark.Beta, 1e-9)
	assert.InDelta(t, 1.0, metrics.Benchmark.Correlation, 1e-9)
	assert.InDelta(t, 0.0, metrics.Benchmark.Alpha, 1e-9)
}

func TestMetrics_BenchmarkLengthMismatch(t *testing.T) {
	s := newTestService()

	_, err := s.Metrics([]float64{0.01, 0.02, 0.03}, []float64{0.01, 0.02}, Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestMetrics_InvalidPeriodsPerYear(t *testing.T) {
	s := newTestService()

	_, err := s.Metrics([]float64{0.01, 0.02}, nil, Params{PeriodsPerYear: intPtr(-1)})
	assert.Error(t, err)
}

func TestMetrics_InvalidConfidence(t *testing.T) {
	s := newTestService()

	_, err := s.Metrics([]float64{0.01, 0.02}, nil, Params{ConfidenceLevel: floatPtr(1.5)})
	assert.Error(t, err)
}

func TestVaR(t *testing.T) {
	s := newTestService()

	// 20 observations, 95% confidence: cutoff index floor(20*0.05) = 1, the
	// second-worst return.
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.01
	}
	returns[0] = -0.10
	returns[1] = -0.05

	value, confidence, err := s.VaR(returns, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.95, confidence)
	assert.InDelta(t, 0.05, value, 1e-9)
}

func TestVaR_ExplicitConfidence(t *testing.T) {
	s := newTestService()

	value, confidence, err := s.VaR([]float64{-0.02, 0.01, 0.03}, floatPtr(0.5))
	require.NoError(t, err)
	assert.Equal(t, 0.5, confidence)
	// cutoff index floor(3*0.5) = 1: the middle of the sorted series.
	assert.InDelta(t, -0.01, value, 1e-9)
}

func TestVaR_InvalidConfidence(t *testing.T) {
	s := newTestService()

	_, _, err := s.VaR([]float64{0.01}, floatPtr(1.5))
	assert.Error(t, err)
}

func TestCVaR(t *testing.T) {
	s := newTestService()

	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.01
	}
	returns[0] = -0.10
	returns[1] = -0.05

	value, confidence, err := s.CVaR(returns, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.95, confidence)
	// Mean of the single observation below the cutoff.
	assert.InDelta(t, 0.10, value, 1e-9)
}

func TestMonteCarlo(t *testing.T) {
	s := newTestService()

	result, err := s.MonteCarlo([]float64{0.01, -0.01}, nil, 5000, rand.NewPCG(1, 2))
	require.NoError(t, err)

	assert.InDelta(t, 0.0, result.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(0.0002), result.StdDev, 1e-9)
	assert.Equal(t, 5000, result.Simulations)
	assert.Equal(t, 0.95, result.ConfidenceLevel)

	// VaR at 95% of a N(0, 0.01414) sample sits near 1.645 sigma; the bounds
	// are far outside Monte Carlo sampling error at this sample size.
	assert.Greater(t, result.VaR, 0.015)
	assert.Less(t, result.VaR, 0.032)
	assert.Greater(t, result.CVaR, result.VaR)
}

func TestMonteCarlo_DefaultSimulations(t *testing.T) {
	s := newTestService()

	result, err := s.MonteCarlo([]float64{0.01, -0.01}, nil, 0, rand.NewPCG(7, 9))
	require.NoError(t, err)
	assert.Equal(t, DefaultSimulations, result.Simulations)
}

func TestMonteCarlo_InvalidConfidence(t *testing.T) {
	s := newTestService()

	_, err := s.MonteCarlo([]float64{0.01, -0.01}, floatPtr(0), 100, rand.NewPCG(1, 1))
	assert.Error(t, err)
}
