// Package risk computes risk and performance ratios for return series:
// volatility, Sharpe, Sortino, Calmar, Omega, historical and Monte Carlo
// VaR/CVaR, and benchmark-relative beta, alpha, and correlation.
package risk

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// DefaultSimulations is the Monte Carlo sample size when a request does not
// specify one.
const DefaultSimulations = 10000

// Defaults carries the configured fallback parameters applied when a request
// omits them.
type Defaults struct {
	RiskFreeRate    float64
	PeriodsPerYear  int
	ConfidenceLevel float64
}

// Params carries per-request overrides. Pointers keep an explicit zero
// distinguishable from an absent field.
type Params struct {
	RiskFreeRate    *float64
	PeriodsPerYear  *int
	ConfidenceLevel *float64
}

// ResolvedParams reports the parameters a computation actually used.
type ResolvedParams struct {
	RiskFreeRate    float64 `json:"risk_free_rate"`
	PeriodsPerYear  int     `json:"periods_per_year"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

// BenchmarkMetrics holds the benchmark-relative metrics of a return series.
type BenchmarkMetrics struct {
	Beta        float64 `json:"beta"`
	Alpha       float64 `json:"alpha"`
	Correlation float64 `json:"correlation"`
}

// Metrics is the full ratio set for a return series. Sortino and Omega are
// nil when the series has no downside, where both ratios are unbounded.
type Metrics struct {
	Count                int               `json:"count"`
	MeanReturn           float64           `json:"mean_return"`
	Volatility           float64           `json:"volatility"`
	AnnualizedVolatility float64           `json:"annualized_volatility"`
	AnnualizedReturn     float64           `json:"annualized_return"`
	Sharpe               float64           `json:"sharpe"`
	Sortino              *float64          `json:"sortino"`
	Calmar               float64           `json:"calmar"`
	Omega                *float64          `json:"omega"`
	VaR                  float64           `json:"var"`
	CVaR                 float64           `json:"cvar"`
	MaxDrawdown          float64           `json:"max_drawdown"`
	Benchmark            *BenchmarkMetrics `json:"benchmark,omitempty"`
	Params               ResolvedParams    `json:"params"`
}

// MonteCarloResult holds a parametric VaR/CVaR estimate together with the
// sample moments and simulation parameters that produced it.
type MonteCarloResult struct {
	Mean            float64 `json:"mean"`
	StdDev          float64 `json:"std_dev"`
	Simulations     int     `json:"simulations"`
	ConfidenceLevel float64 `json:"confidence_level"`
	VaR             float64 `json:"var"`
	CVaR            float64 `json:"cvar"`
}

// Service provides risk metric business logic
type Service struct {
	defaults Defaults
	log      zerolog.Logger
}

// NewService creates a new risk service
func NewService(defaults Defaults, log zerolog.Logger) *Service {
	return &Service{
		defaults: defaults,
		log:      log.With().Str("service", "risk").Logger(),
	}
}

// resolve applies the configured defaults to any parameter the request left
// unset.
func (s *Service) resolve(p Params) ResolvedParams {
	resolved := ResolvedParams{
		RiskFreeRate:    s.defaults.RiskFreeRate,
		PeriodsPerYear:  s.defaults.PeriodsPerYear,
		ConfidenceLevel: s.defaults.ConfidenceLevel,
	}
	if p.RiskFreeRate != nil {
		resolved.RiskFreeRate = *p.RiskFreeRate
	}
	if p.PeriodsPerYear != nil {
		resolved.PeriodsPerYear = *p.PeriodsPerYear
	}
	if p.ConfidenceLevel != nil {
		resolved.ConfidenceLevel = *p.ConfidenceLevel
	}
	return resolved
}

// Metrics computes the full ratio set for a return series. Sortino and Omega
// are measured against a zero target. When a benchmark series is supplied it
// must have the same length as returns; beta, alpha, and correlation are then
// included.
func (s *Service) Metrics(returns, benchmark []float64, p Params) (*Metrics, error) {
	params := s.resolve(p)

	if len(benchmark) > 0 && len(benchmark) != len(returns) {
		return nil, fmt.Errorf("benchmark length %d does not match returns length %d",
			len(benchmark), len(returns))
	}

	volatility, err := formulas.Volatility(returns, params.PeriodsPerYear, false)
	if err != nil {
		return nil, err
	}
	annualizedVol, err := formulas.Volatility(returns, params.PeriodsPerYear, true)
	if err != nil {
		return nil, err
	}
	annualizedReturn, err := formulas.AnnualizedReturn(returns, params.PeriodsPerYear)
	if err != nil {
		return nil, err
	}
	sharpe, err := formulas.SharpeRatio(returns, params.RiskFreeRate, params.PeriodsPerYear)
	if err != nil {
		return nil, err
	}
	sortino, err := formulas.SortinoRatio(returns, 0, params.PeriodsPerYear)
	if err != nil {
		return nil, err
	}
	calmar, err := formulas.CalmarRatio(returns, params.PeriodsPerYear)
	if err != nil {
		return nil, err
	}
	valueAtRisk, err := formulas.HistoricalVaR(returns, params.ConfidenceLevel)
	if err != nil {
		return nil, err
	}
	conditionalVaR, err := formulas.HistoricalCVaR(returns, params.ConfidenceLevel)
	if err != nil {
		return nil, err
	}

	metrics := &Metrics{
		Count:                len(returns),
		MeanReturn:           formulas.Mean(returns),
		Volatility:           volatility,
		AnnualizedVolatility: annualizedVol,
		AnnualizedReturn:     annualizedReturn,
		Sharpe:               sharpe,
		Sortino:              finiteOrNil(sortino),
		Calmar:               calmar,
		Omega:                finiteOrNil(formulas.OmegaRatio(returns, 0)),
		VaR:                  valueAtRisk,
		CVaR:                 conditionalVaR,
		MaxDrawdown:          formulas.MaxDrawdown(formulas.CumulativeReturns(returns, formulas.DefaultInitialValue)),
		Params:               params,
	}

	if len(benchmark) > 0 {
		alpha, err := formulas.Alpha(returns, benchmark, params.RiskFreeRate, params.PeriodsPerYear)
		if err != nil {
			return nil, err
		}
		metrics.Benchmark = &BenchmarkMetrics{
			Beta:        formulas.Beta(returns, benchmark),
			Alpha:       alpha,
			Correlation: formulas.Correlation(returns, benchmark),
		}
	}

	return metrics, nil
}

// VaR computes the historical value at risk of a return series. It returns
// the loss magnitude and the confidence level actually used.
func (s *Service) VaR(returns []float64, confidence *float64) (float64, float64, error) {
	conf := s.defaults.ConfidenceLevel
	if confidence != nil {
		conf = *confidence
	}
	value, err := formulas.HistoricalVaR(returns, conf)
	return value, conf, err
}

// CVaR computes the historical conditional value at risk of a return series.
// It returns the loss magnitude and the confidence level actually used.
func (s *Service) CVaR(returns []float64, confidence *float64) (float64, float64, error) {
	conf := s.defaults.ConfidenceLevel
	if confidence != nil {
		conf = *confidence
	}
	value, err := formulas.HistoricalCVaR(returns, conf)
	return value, conf, err
}

// MonteCarlo fits a normal distribution to the sample moments of the return
// series and estimates VaR and CVaR from simulated draws. VaR and CVaR come
// from independent samples. A nil src uses the global random source; pass a
// fixed one for reproducible estimates.
func (s *Service) MonteCarlo(returns []float64, confidence *float64, simulations int, src rand.Source) (*MonteCarloResult, error) {
	conf := s.defaults.ConfidenceLevel
	if confidence != nil {
		conf = *confidence
	}
	if simulations <= 0 {
		simulations = DefaultSimulations
	}

	mean := formulas.Mean(returns)
	stdDev := formulas.StdDev(returns)

	valueAtRisk, err := formulas.MonteCarloVaR(mean, stdDev, conf, simulations, src)
	if err != nil {
		return nil, err
	}
	conditionalVaR, err := formulas.MonteCarloCVaR(mean, stdDev, conf, simulations, src)
	if err != nil {
		return nil, err
	}

	return &MonteCarloResult{
		Mean:            mean,
		StdDev:          stdDev,
		Simulations:     simulations,
		ConfidenceLevel: conf,
		VaR:             valueAtRisk,
		CVaR:            conditionalVaR,
	}, nil
}

// finiteOrNil returns nil for values JSON cannot encode. Sortino and Omega
// produce +Inf when a series has no downside periods.
func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
