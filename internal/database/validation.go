package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// weightSumTolerance is the maximum allowed deviation of a portfolio's weight
// sum from 1.0 before it is reported as unnormalized.
const weightSumTolerance = 0.001

// PortfolioValidator validates referential integrity of the config database
type PortfolioValidator struct {
	db *sql.DB
}

// ValidationResult contains the results of all validation checks
type ValidationResult struct {
	IsValid                bool
	OrphanedWeights        []string // Weight rows referencing non-existent portfolios
	EmptyPortfolios        []string // Portfolios without any weight rows
	UnnormalizedPortfolios []string // Portfolios whose weights do not sum to 1.0
}

// NewPortfolioValidator creates a new portfolio validator
func NewPortfolioValidator(db *sql.DB) *PortfolioValidator {
	return &PortfolioValidator{
		db: db,
	}
}

// ValidateNoOrphanedWeights checks that every weight row references an existing portfolio.
// Returns list of orphaned references (format: "portfolio_id:symbol")
func (v *PortfolioValidator) ValidateNoOrphanedWeights() ([]string, error) {
	query := `
		SELECT w.portfolio_id, w.symbol
		FROM portfolio_weights w
		LEFT JOIN portfolios p ON w.portfolio_id = p.id
		WHERE p.id IS NULL
	`

	rows, err := v.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned weights: %w", err)
	}
	defer rows.Close()

	var orphaned []string
	for rows.Next() {
		var portfolioID int64
		var symbol string
		if err := rows.Scan(&portfolioID, &symbol); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned weight: %w", err)
		}
		orphaned = append(orphaned, fmt.Sprintf("%d:%s", portfolioID, symbol))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return orphaned, nil
}

// ValidateNoEmptyPortfolios checks that every portfolio has at least one weight row.
// Returns list of portfolio names without holdings
func (v *PortfolioValidator) ValidateNoEmptyPortfolios() ([]string, error) {
	query := `
		SELECT p.name
		FROM portfolios p
		LEFT JOIN portfolio_weights w ON p.id = w.portfolio_id
		WHERE w.portfolio_id IS NULL
	`

	rows, err := v.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query empty portfolios: %w", err)
	}
	defer rows.Close()

	var empty []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio name: %w", err)
		}
		empty = append(empty, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return empty, nil
}

// ValidateWeightSums checks that each portfolio's weights sum to 1.0 within tolerance.
// Weights are normalized on every write, so a drifted sum indicates manual edits
// or a partially applied transaction.
// Returns list of offenders (format: "name:sum")
func (v *PortfolioValidator) ValidateWeightSums() ([]string, error) {
	query := `
		SELECT p.name, SUM(w.weight) as total
		FROM portfolios p
		JOIN portfolio_weights w ON p.id = w.portfolio_id
		GROUP BY p.id
		HAVING ABS(total - 1.0) > ?
	`

	rows, err := v.db.Query(query, weightSumTolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight sums: %w", err)
	}
	defer rows.Close()

	var unnormalized []string
	for rows.Next() {
		var name string
		var total float64
		if err := rows.Scan(&name, &total); err != nil {
			return nil, fmt.Errorf("failed to scan weight sum: %w", err)
		}
		unnormalized = append(unnormalized, fmt.Sprintf("%s:%.4f", name, total))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return unnormalized, nil
}

// ValidateAll runs all validation checks and returns a comprehensive result
func (v *PortfolioValidator) ValidateAll() (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid:                true,
		OrphanedWeights:        []string{},
		EmptyPortfolios:        []string{},
		UnnormalizedPortfolios: []string{},
	}

	// Check for weight rows pointing at missing portfolios
	orphaned, err := v.ValidateNoOrphanedWeights()
	if err != nil {
		return nil, fmt.Errorf("failed to validate weight references: %w", err)
	}
	result.OrphanedWeights = orphaned
	if len(orphaned) > 0 {
		result.IsValid = false
	}

	// Check for portfolios without holdings
	empty, err := v.ValidateNoEmptyPortfolios()
	if err != nil {
		return nil, fmt.Errorf("failed to validate portfolio holdings: %w", err)
	}
	result.EmptyPortfolios = empty
	if len(empty) > 0 {
		result.IsValid = false
	}

	// Check weight sums
	unnormalized, err := v.ValidateWeightSums()
	if err != nil {
		return nil, fmt.Errorf("failed to validate weight sums: %w", err)
	}
	result.UnnormalizedPortfolios = unnormalized
	if len(unnormalized) > 0 {
		result.IsValid = false
	}

	return result, nil
}

// FormatErrors formats validation errors for display
func (r *ValidationResult) FormatErrors() string {
	if r.IsValid {
		return "All validations passed"
	}

	var parts []string

	if len(r.OrphanedWeights) > 0 {
		parts = append(parts, fmt.Sprintf("Orphaned weights (%d): %s", len(r.OrphanedWeights), strings.Join(r.OrphanedWeights, ", ")))
	}

	if len(r.EmptyPortfolios) > 0 {
		parts = append(parts, fmt.Sprintf("Empty portfolios (%d): %s", len(r.EmptyPortfolios), strings.Join(r.EmptyPortfolios, ", ")))
	}

	if len(r.UnnormalizedPortfolios) > 0 {
		parts = append(parts, fmt.Sprintf("Unnormalized portfolios (%d): %s", len(r.UnnormalizedPortfolios), strings.Join(r.UnnormalizedPortfolios, ", ")))
	}

	return strings.Join(parts, "\n")
}
