package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// ErrNotFound is returned when a portfolio id does not exist.
var ErrNotFound = errors.New("portfolio not found")

// Repository handles portfolio persistence.
// Database: config.db (portfolios + portfolio_weights tables)
type Repository struct {
	db  *sql.DB // config.db
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository.
// db parameter should be the config.db connection.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "portfolio").Logger(),
	}
}

// Create stores a new portfolio. Weights are normalized to sum to 1 before
// writing so the stored definition is always in canonical form.
func (r *Repository) Create(name string, weights map[string]float64, benchmarkSymbol string) (*domain.Portfolio, error) {
	normalized := formulas.NormalizeWeights(weights)
	now := time.Now().UTC().Format(time.RFC3339)

	var id int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO portfolios (name, benchmark_symbol, created_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, name, benchmarkSymbol, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert portfolio: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get portfolio id: %w", err)
		}

		return insertWeights(tx, id, normalized)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Int64("portfolio_id", id).Str("name", name).Msg("Portfolio created")
	return r.GetByID(id)
}

// GetByID loads a portfolio with its weights. Returns ErrNotFound when the id
// does not exist.
func (r *Repository) GetByID(id int64) (*domain.Portfolio, error) {
	p := domain.Portfolio{ID: id}

	var createdAt, updatedAt string
	err := r.db.QueryRow(`
		SELECT name, benchmark_symbol, created_at, updated_at
		FROM portfolios
		WHERE id = ?
	`, id).Scan(&p.Name, &p.BenchmarkSymbol, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}

	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)

	weights, err := r.getWeights(id)
	if err != nil {
		return nil, err
	}
	p.Weights = weights

	return &p, nil
}

// List returns all portfolios with their weights, ordered by name.
func (r *Repository) List() ([]domain.Portfolio, error) {
	rows, err := r.db.Query(`
		SELECT id, name, benchmark_symbol, created_at, updated_at
		FROM portfolios
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]domain.Portfolio, 0)
	for rows.Next() {
		var p domain.Portfolio
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.BenchmarkSymbol, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio row: %w", err)
		}
		p.CreatedAt = parseTimestamp(createdAt)
		p.UpdatedAt = parseTimestamp(updatedAt)
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	for i := range portfolios {
		weights, err := r.getWeights(portfolios[i].ID)
		if err != nil {
			return nil, err
		}
		portfolios[i].Weights = weights
	}

	return portfolios, nil
}

// Update replaces a portfolio's definition. Weights are normalized before
// writing, same as Create.
func (r *Repository) Update(id int64, name string, weights map[string]float64, benchmarkSymbol string) (*domain.Portfolio, error) {
	normalized := formulas.NormalizeWeights(weights)
	now := time.Now().UTC().Format(time.RFC3339)

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE portfolios
			SET name = ?, benchmark_symbol = ?, updated_at = ?
			WHERE id = ?
		`, name, benchmarkSymbol, now, id)
		if err != nil {
			return fmt.Errorf("failed to update portfolio %d: %w", id, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update of portfolio %d: %w", id, err)
		}
		if affected == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec("DELETE FROM portfolio_weights WHERE portfolio_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear weights for portfolio %d: %w", id, err)
		}

		return insertWeights(tx, id, normalized)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Int64("portfolio_id", id).Msg("Portfolio updated")
	return r.GetByID(id)
}

// Delete removes a portfolio. Weights go with it via ON DELETE CASCADE.
// Returns ErrNotFound when the id does not exist.
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of portfolio %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	r.log.Info().Int64("portfolio_id", id).Msg("Portfolio deleted")
	return nil
}

// AllSymbols returns the union of all symbols referenced by any portfolio,
// weights and benchmarks alike, sorted. This is the set the price sync keeps
// history for.
func (r *Repository) AllSymbols() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT symbol FROM portfolio_weights
		UNION
		SELECT DISTINCT benchmark_symbol FROM portfolios WHERE benchmark_symbol != ''
		ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio symbols: %w", err)
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol row: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// getWeights loads the weight map for one portfolio.
func (r *Repository) getWeights(portfolioID int64) (map[string]float64, error) {
	rows, err := r.db.Query(`
		SELECT symbol, weight
		FROM portfolio_weights
		WHERE portfolio_id = ?
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get weights for portfolio %d: %w", portfolioID, err)
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var weight float64
		if err := rows.Scan(&symbol, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan weight row: %w", err)
		}
		weights[symbol] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weights: %w", err)
	}

	return weights, nil
}

// insertWeights writes one row per symbol inside an open transaction.
func insertWeights(tx *sql.Tx, portfolioID int64, weights map[string]float64) error {
	stmt, err := tx.Prepare(`
		INSERT INTO portfolio_weights (portfolio_id, symbol, weight)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare weight insert: %w", err)
	}
	defer stmt.Close()

	for symbol, weight := range weights {
		if _, err := stmt.Exec(portfolioID, symbol, weight); err != nil {
			return fmt.Errorf("failed to insert weight for %s: %w", symbol, err)
		}
	}
	return nil
}

// parseTimestamp tolerates both RFC3339 and SQLite's datetime('now') format.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
