// Package statistics exposes descriptive statistics and return-series
// transforms over arbitrary numeric series supplied by the caller.
package statistics

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Percentiles holds the standard percentile ladder reported by Describe.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// DescribeResult is the full descriptive summary of a numeric series.
// All fields are 0 for an empty series.
type DescribeResult struct {
	Count       int         `json:"count"`
	Mean        float64     `json:"mean"`
	StdDev      float64     `json:"std_dev"`
	PopStdDev   float64     `json:"pop_std_dev"`
	Variance    float64     `json:"variance"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	Skewness    float64     `json:"skewness"`
	Kurtosis    float64     `json:"kurtosis"`
	Percentiles Percentiles `json:"percentiles"`
}

// DrawdownReport pairs the per-period drawdown series with its summary stats.
type DrawdownReport struct {
	Drawdowns []float64              `json:"drawdowns"`
	Summary   formulas.DrawdownStats `json:"summary"`
}

// Service provides statistics business logic
type Service struct {
	log zerolog.Logger
}

// NewService creates a new statistics service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "statistics").Logger(),
	}
}

// Describe computes the full descriptive summary of a series.
func (s *Service) Describe(series []float64) DescribeResult {
	result := DescribeResult{
		Count:     len(series),
		Mean:      formulas.Mean(series),
		StdDev:    formulas.StdDev(series),
		PopStdDev: formulas.PopStdDev(series),
		Variance:  formulas.Variance(series),
		Min:       formulas.Min(series),
		Max:       formulas.Max(series),
		Skewness:  formulas.Skewness(series),
		Kurtosis:  formulas.Kurtosis(series),
	}

	// The ladder probabilities are all in [0, 1], so Percentile cannot fail.
	result.Percentiles.P5, _ = formulas.Percentile(series, 0.05)
	result.Percentiles.P25, _ = formulas.Percentile(series, 0.25)
	result.Percentiles.P50, _ = formulas.Percentile(series, 0.50)
	result.Percentiles.P75, _ = formulas.Percentile(series, 0.75)
	result.Percentiles.P95, _ = formulas.Percentile(series, 0.95)

	return result
}

// Percentile computes the p-th percentile of a series with linear
// interpolation. p must be in [0, 1].
func (s *Service) Percentile(series []float64, p float64) (float64, error) {
	return formulas.Percentile(series, p)
}

// Returns converts a price series into a return series. method selects the
// transform: "simple" (default when empty) or "log".
func (s *Service) Returns(prices []float64, method string) ([]float64, error) {
	switch method {
	case "", "simple":
		return formulas.SimpleReturns(prices), nil
	case "log":
		return formulas.LogReturns(prices), nil
	default:
		return nil, fmt.Errorf("unknown return method %q (want \"simple\" or \"log\")", method)
	}
}

// Cumulative compounds a return series into a growth series starting at
// initialValue, which is prepended as the first element.
func (s *Service) Cumulative(returns []float64, initialValue float64) []float64 {
	return formulas.CumulativeReturns(returns, initialValue)
}

// Drawdowns compounds a return series from a unit base and reports the
// drawdown at every point together with summary statistics.
func (s *Service) Drawdowns(returns []float64) DrawdownReport {
	cumulative := formulas.CumulativeReturns(returns, formulas.DefaultInitialValue)
	return DrawdownReport{
		Drawdowns: formulas.Drawdowns(cumulative),
		Summary:   formulas.AnalyzeDrawdowns(cumulative),
	}
}
