package portfolio

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/modules/risk"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Definition is the payload for creating or replacing a portfolio.
type Definition struct {
	Name            string             `json:"name"`
	Weights         map[string]float64 `json:"weights"`
	BenchmarkSymbol string             `json:"benchmark_symbol,omitempty"`
}

// ReturnsResult is the weighted return series of a portfolio over a window.
type ReturnsResult struct {
	PortfolioID int64     `json:"portfolio_id"`
	Name        string    `json:"name"`
	Days        int       `json:"days"`
	Dates       []string  `json:"dates"`
	Returns     []float64 `json:"returns"`
}

// MetricsResult is the full ratio set of a portfolio's weighted return series.
type MetricsResult struct {
	PortfolioID     int64         `json:"portfolio_id"`
	Name            string        `json:"name"`
	Days            int           `json:"days"`
	BenchmarkSymbol string        `json:"benchmark_symbol,omitempty"`
	Metrics         *risk.Metrics `json:"metrics"`
}

// RiskContributionResult decomposes portfolio risk into per-symbol shares.
// Contributions is empty, not zero-filled, when the portfolio has zero
// volatility over the window.
type RiskContributionResult struct {
	PortfolioID   int64              `json:"portfolio_id"`
	Name          string             `json:"name"`
	Days          int                `json:"days"`
	Contributions map[string]float64 `json:"contributions"`
}

// CovarianceResult holds the covariance matrix of the portfolio's symbols in
// Symbols order, plus the correlation matrix derived from it. When shrinkage
// was requested both matrices reflect the shrunk estimate.
type CovarianceResult struct {
	PortfolioID int64       `json:"portfolio_id"`
	Name        string      `json:"name"`
	Days        int         `json:"days"`
	Symbols     []string    `json:"symbols"`
	Covariance  [][]float64 `json:"covariance"`
	Correlation [][]float64 `json:"correlation"`
	Shrinkage   float64     `json:"shrinkage"`
}

// SuggestedWeightsResult compares the stored weights with inverse-variance
// weights derived from the same window.
type SuggestedWeightsResult struct {
	PortfolioID int64              `json:"portfolio_id"`
	Name        string             `json:"name"`
	Days        int                `json:"days"`
	Current     map[string]float64 `json:"current"`
	Suggested   map[string]float64 `json:"suggested"`
}

// Service provides portfolio business logic on top of the repositories and
// the series builder.
type Service struct {
	repo         *Repository
	snapshots    *SnapshotRepository
	series       *SeriesBuilder
	riskSvc      *risk.Service
	lookbackDays int
	log          zerolog.Logger
}

// NewService creates a new portfolio service. lookbackDays is the window used
// when a request does not specify one.
func NewService(
	repo *Repository,
	snapshots *SnapshotRepository,
	series *SeriesBuilder,
	riskSvc *risk.Service,
	lookbackDays int,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		snapshots:    snapshots,
		series:       series,
		riskSvc:      riskSvc,
		lookbackDays: lookbackDays,
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// Create validates and stores a new portfolio.
func (s *Service) Create(def Definition) (*domain.Portfolio, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	return s.repo.Create(strings.TrimSpace(def.Name), def.Weights, strings.TrimSpace(def.BenchmarkSymbol))
}

// Get loads one portfolio.
func (s *Service) Get(id int64) (*domain.Portfolio, error) {
	return s.repo.GetByID(id)
}

// List returns all portfolios.
func (s *Service) List() ([]domain.Portfolio, error) {
	return s.repo.List()
}

// Update validates and replaces a portfolio's definition.
func (s *Service) Update(id int64, def Definition) (*domain.Portfolio, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	return s.repo.Update(id, strings.TrimSpace(def.Name), def.Weights, strings.TrimSpace(def.BenchmarkSymbol))
}

// Delete removes a portfolio and its metric snapshots.
func (s *Service) Delete(id int64) error {
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	// Snapshot cleanup is best-effort: the portfolio is already gone and
	// orphaned history rows only waste space.
	if err := s.snapshots.DeleteByPortfolio(id); err != nil {
		s.log.Warn().Err(err).Int64("portfolio_id", id).Msg("Failed to delete snapshots")
	}
	return nil
}

// Returns computes the weighted return series for a portfolio over the
// window.
func (s *Service) Returns(id int64, days int) (*ReturnsResult, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	days = s.resolveDays(days)

	returns, dates, err := s.series.Returns(sortedPortfolioSymbols(p), days)
	if err != nil {
		return nil, err
	}

	weighted, err := formulas.PortfolioReturns(returns, p.Weights)
	if err != nil {
		return nil, err
	}

	return &ReturnsResult{
		PortfolioID: p.ID,
		Name:        p.Name,
		Days:        days,
		Dates:       dates,
		Returns:     weighted,
	}, nil
}

// Metrics computes the full ratio set for a portfolio's weighted return
// series. When the portfolio has a benchmark symbol its series is aligned on
// the same date grid and beta/alpha/correlation are included.
func (s *Service) Metrics(id int64, days int) (*MetricsResult, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	days = s.resolveDays(days)

	fetchSymbols := sortedPortfolioSymbols(p)
	benchmark := p.BenchmarkSymbol
	if benchmark != "" {
		if _, weighted := p.Weights[benchmark]; !weighted {
			fetchSymbols = append(fetchSymbols, benchmark)
		}
	}

	returns, _, err := s.series.Returns(fetchSymbols, days)
	if err != nil {
		return nil, err
	}

	weighted, err := formulas.PortfolioReturns(returns, p.Weights)
	if err != nil {
		return nil, err
	}

	var benchmarkReturns []float64
	if benchmark != "" {
		benchmarkReturns = returns[benchmark]
	}

	metrics, err := s.riskSvc.Metrics(weighted, benchmarkReturns, risk.Params{})
	if err != nil {
		return nil, err
	}

	return &MetricsResult{
		PortfolioID:     p.ID,
		Name:            p.Name,
		Days:            days,
		BenchmarkSymbol: benchmark,
		Metrics:         metrics,
	}, nil
}

// RiskContribution decomposes the portfolio's risk into per-symbol shares.
func (s *Service) RiskContribution(id int64, days int) (*RiskContributionResult, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	days = s.resolveDays(days)

	returns, _, err := s.series.Returns(sortedPortfolioSymbols(p), days)
	if err != nil {
		return nil, err
	}

	contributions, err := formulas.RiskContribution(returns, p.Weights)
	if err != nil {
		return nil, err
	}

	return &RiskContributionResult{
		PortfolioID:   p.ID,
		Name:          p.Name,
		Days:          days,
		Contributions: contributions,
	}, nil
}

// Covariance builds the covariance and correlation matrices over the
// portfolio's symbols. A non-nil shrinkage applies Ledoit-Wolf shrinkage with
// that intensity before the correlation matrix is derived.
func (s *Service) Covariance(id int64, days int, shrinkage *float64) (*CovarianceResult, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	days = s.resolveDays(days)

	symbols := sortedPortfolioSymbols(p)
	returns, _, err := s.series.Returns(symbols, days)
	if err != nil {
		return nil, err
	}

	cov, err := formulas.CovarianceMatrix(returns, symbols)
	if err != nil {
		return nil, err
	}

	applied := 0.0
	if shrinkage != nil {
		cov, err = formulas.LedoitWolfShrinkage(cov, *shrinkage)
		if err != nil {
			return nil, err
		}
		applied = *shrinkage
	}

	corr, err := formulas.CorrelationMatrixFromCovariance(cov)
	if err != nil {
		return nil, err
	}

	return &CovarianceResult{
		PortfolioID: p.ID,
		Name:        p.Name,
		Days:        days,
		Symbols:     symbols,
		Covariance:  cov,
		Correlation: corr,
		Shrinkage:   applied,
	}, nil
}

// SuggestedWeights derives inverse-variance weights from the window and
// returns them next to the stored weights.
func (s *Service) SuggestedWeights(id int64, days int) (*SuggestedWeightsResult, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	days = s.resolveDays(days)

	symbols := sortedPortfolioSymbols(p)
	returns, _, err := s.series.Returns(symbols, days)
	if err != nil {
		return nil, err
	}

	cov, err := formulas.CovarianceMatrix(returns, symbols)
	if err != nil {
		return nil, err
	}

	suggested, err := formulas.InverseVarianceWeights(cov, symbols)
	if err != nil {
		return nil, err
	}

	return &SuggestedWeightsResult{
		PortfolioID: p.ID,
		Name:        p.Name,
		Days:        days,
		Current:     p.Weights,
		Suggested:   suggested,
	}, nil
}

// Snapshots returns the most recent `limit` persisted snapshots in
// chronological order.
func (s *Service) Snapshots(id int64, limit int) ([]domain.MetricSnapshot, error) {
	if _, err := s.repo.GetByID(id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 90
	}
	return s.snapshots.ListByPortfolio(id, limit)
}

// ComputeSnapshot computes today's metrics for one portfolio over the default
// lookback and maps them into a snapshot row. The stored volatility is the
// annualized figure so rows are comparable across windows.
func (s *Service) ComputeSnapshot(p *domain.Portfolio, date string) (*domain.MetricSnapshot, error) {
	result, err := s.Metrics(p.ID, s.lookbackDays)
	if err != nil {
		return nil, err
	}
	m := result.Metrics

	snap := &domain.MetricSnapshot{
		PortfolioID:      p.ID,
		Date:             date,
		Volatility:       m.AnnualizedVolatility,
		Sharpe:           m.Sharpe,
		Sortino:          m.Sortino,
		Calmar:           m.Calmar,
		Omega:            m.Omega,
		VaR95:            m.VaR,
		CVaR95:           m.CVaR,
		MaxDrawdown:      m.MaxDrawdown,
		AnnualizedReturn: m.AnnualizedReturn,
	}
	if m.Benchmark != nil {
		snap.Beta = m.Benchmark.Beta
		snap.Alpha = m.Benchmark.Alpha
	}
	return snap, nil
}

// SnapshotAll computes and persists today's snapshot for every stored
// portfolio. One portfolio failing does not stop the rest; the error count is
// reported to the caller.
func (s *Service) SnapshotAll() (int, int, error) {
	portfolios, err := s.repo.List()
	if err != nil {
		return 0, 0, err
	}

	date := time.Now().UTC().Format(domain.DateFormat)
	written := 0
	failed := 0

	for i := range portfolios {
		p := &portfolios[i]
		snap, err := s.ComputeSnapshot(p, date)
		if err != nil {
			s.log.Warn().Err(err).Int64("portfolio_id", p.ID).Str("name", p.Name).Msg("Snapshot computation failed")
			failed++
			continue
		}
		if err := s.snapshots.Upsert(snap); err != nil {
			s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Snapshot write failed")
			failed++
			continue
		}
		written++
	}

	return written, failed, nil
}

// resolveDays falls back to the configured lookback when a request does not
// specify a window.
func (s *Service) resolveDays(days int) int {
	if days <= 0 {
		return s.lookbackDays
	}
	return days
}

// sortedPortfolioSymbols returns the portfolio's symbols in lexical order so
// matrix endpoints produce deterministic layouts.
func sortedPortfolioSymbols(p *domain.Portfolio) []string {
	symbols := p.Symbols()
	sort.Strings(symbols)
	return symbols
}

// validateDefinition checks a create/update payload before any write.
func validateDefinition(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("portfolio name must not be empty")
	}
	if len(def.Weights) == 0 {
		return fmt.Errorf("portfolio must have at least one weight")
	}

	var sum float64
	for symbol, weight := range def.Weights {
		if strings.TrimSpace(symbol) == "" {
			return fmt.Errorf("weight symbols must not be empty")
		}
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return fmt.Errorf("weight for %s must be finite, got %v", symbol, weight)
		}
		sum += weight
	}
	if sum == 0 {
		return fmt.Errorf("weights must not sum to zero")
	}
	return nil
}
