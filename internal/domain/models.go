package domain

import "time"

// DateFormat is the canonical day format used in database date columns.
const DateFormat = "2006-01-02"

// PriceBar represents one day of OHLCV history for a symbol
type PriceBar struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Portfolio represents a named set of target weights over symbols.
// Weights are stored normalized so they sum to 1.
type Portfolio struct {
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Weights         map[string]float64 `json:"weights"`
	Name            string             `json:"name"`
	BenchmarkSymbol string             `json:"benchmark_symbol,omitempty"`
	ID              int64              `json:"id"`
}

// Symbols returns the portfolio's symbols in no particular order.
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, 0, len(p.Weights))
	for symbol := range p.Weights {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// MetricSnapshot is one day's persisted risk metrics for a portfolio.
// Sortino and Omega are pointers because both ratios are unbounded when the
// lookback window contains no losses; an unbounded value is stored as NULL and
// serialized as JSON null.
type MetricSnapshot struct {
	CreatedAt        time.Time `json:"created_at"`
	Date             string    `json:"date"`
	Sortino          *float64  `json:"sortino"`
	Omega            *float64  `json:"omega"`
	ID               int64     `json:"id"`
	PortfolioID      int64     `json:"portfolio_id"`
	Volatility       float64   `json:"volatility"`
	Sharpe           float64   `json:"sharpe"`
	Calmar           float64   `json:"calmar"`
	VaR95            float64   `json:"var_95"`
	CVaR95           float64   `json:"cvar_95"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	AnnualizedReturn float64   `json:"annualized_return"`
	Beta             float64   `json:"beta"`
	Alpha            float64   `json:"alpha"`
}

// JobRun records a single scheduler job execution
type JobRun struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ID         string    `json:"id"`
	JobName    string    `json:"job_name"`
	Error      string    `json:"error,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Success    bool      `json:"success"`
}

// SyncState tracks the last successful price sync per symbol
type SyncState struct {
	LastSyncedAt time.Time `json:"last_synced_at"`
	Symbol       string    `json:"symbol"`
	Bars         int64     `json:"bars"`
}
