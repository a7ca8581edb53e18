package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// SnapshotRepository handles persisted daily metric snapshots.
// Database: analytics.db (metric_snapshots table)
type SnapshotRepository struct {
	db  *sql.DB // analytics.db
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
// db parameter should be the analytics.db connection.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repository", "snapshots").Logger(),
	}
}

// Upsert writes one day's metrics for a portfolio. Re-running the snapshot job
// on the same day overwrites that day's row instead of producing duplicates.
func (r *SnapshotRepository) Upsert(snap *domain.MetricSnapshot) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.Exec(`
		INSERT INTO metric_snapshots (
			portfolio_id, date, volatility, sharpe, sortino, calmar, omega,
			var_95, cvar_95, max_drawdown, annualized_return, beta, alpha, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, date) DO UPDATE SET
			volatility = excluded.volatility,
			sharpe = excluded.sharpe,
			sortino = excluded.sortino,
			calmar = excluded.calmar,
			omega = excluded.omega,
			var_95 = excluded.var_95,
			cvar_95 = excluded.cvar_95,
			max_drawdown = excluded.max_drawdown,
			annualized_return = excluded.annualized_return,
			beta = excluded.beta,
			alpha = excluded.alpha,
			created_at = excluded.created_at
	`,
		snap.PortfolioID, snap.Date, snap.Volatility, snap.Sharpe,
		nullableFloat(snap.Sortino), snap.Calmar, nullableFloat(snap.Omega),
		snap.VaR95, snap.CVaR95, snap.MaxDrawdown, snap.AnnualizedReturn,
		snap.Beta, snap.Alpha, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot for portfolio %d on %s: %w", snap.PortfolioID, snap.Date, err)
	}
	return nil
}

// ListByPortfolio returns the most recent `limit` snapshots in chronological
// order, oldest first, so the result plots directly.
func (r *SnapshotRepository) ListByPortfolio(portfolioID int64, limit int) ([]domain.MetricSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, date, volatility, sharpe, sortino, calmar, omega,
		       var_95, cvar_95, max_drawdown, annualized_return, beta, alpha, created_at
		FROM metric_snapshots
		WHERE portfolio_id = ?
		ORDER BY date DESC
		LIMIT ?
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for portfolio %d: %w", portfolioID, err)
	}
	defer rows.Close()

	snapshots := make([]domain.MetricSnapshot, 0)
	for rows.Next() {
		var snap domain.MetricSnapshot
		var sortino, omega sql.NullFloat64
		var createdAt string

		if err := rows.Scan(
			&snap.ID, &snap.PortfolioID, &snap.Date, &snap.Volatility, &snap.Sharpe,
			&sortino, &snap.Calmar, &omega, &snap.VaR95, &snap.CVaR95,
			&snap.MaxDrawdown, &snap.AnnualizedReturn, &snap.Beta, &snap.Alpha, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		if sortino.Valid {
			snap.Sortino = &sortino.Float64
		}
		if omega.Valid {
			snap.Omega = &omega.Float64
		}
		snap.CreatedAt = parseTimestamp(createdAt)

		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	// Reverse DESC query result into chronological order
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}

	return snapshots, nil
}

// DeleteByPortfolio removes all snapshots for a portfolio. analytics.db and
// config.db are separate files, so this stands in for a cross-database cascade
// when a portfolio is deleted.
func (r *SnapshotRepository) DeleteByPortfolio(portfolioID int64) error {
	result, err := r.db.Exec("DELETE FROM metric_snapshots WHERE portfolio_id = ?", portfolioID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots for portfolio %d: %w", portfolioID, err)
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		r.log.Info().Int64("portfolio_id", portfolioID).Int64("deleted", deleted).Msg("Snapshots removed")
	}
	return nil
}

// nullableFloat maps a nil pointer to SQL NULL.
func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
