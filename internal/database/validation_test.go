package database

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDBForValidation(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	// Create portfolios table matching the config schema
	_, err = db.Exec(`
		CREATE TABLE portfolios (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			benchmark_symbol TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	// Create portfolio_weights without the REFERENCES clause so tests can
	// insert orphaned rows that the validator is supposed to catch
	_, err = db.Exec(`
		CREATE TABLE portfolio_weights (
			portfolio_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			weight REAL NOT NULL,
			PRIMARY KEY (portfolio_id, symbol)
		)
	`)
	require.NoError(t, err)

	return db
}

func insertTestPortfolio(t *testing.T, db *sql.DB, id int64, name string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO portfolios (id, name, created_at, updated_at)
		VALUES (?, ?, '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')
	`, id, name)
	require.NoError(t, err)
}

func insertTestWeight(t *testing.T, db *sql.DB, portfolioID int64, symbol string, weight float64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO portfolio_weights (portfolio_id, symbol, weight)
		VALUES (?, ?, ?)
	`, portfolioID, symbol, weight)
	require.NoError(t, err)
}

func TestValidateNoOrphanedWeights_AllValid(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 0.5)
	insertTestWeight(t, db, 1, "MSFT", 0.5)

	validator := NewPortfolioValidator(db)
	orphaned, err := validator.ValidateNoOrphanedWeights()
	require.NoError(t, err)
	assert.Empty(t, orphaned, "Should have no orphans when all weights reference existing portfolios")
}

func TestValidateNoOrphanedWeights_OrphanedRows(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 1.0)
	// Weight rows for a portfolio that does not exist
	insertTestWeight(t, db, 99, "MSFT", 0.5)
	insertTestWeight(t, db, 99, "GOOG", 0.5)

	validator := NewPortfolioValidator(db)
	orphaned, err := validator.ValidateNoOrphanedWeights()
	require.NoError(t, err)
	assert.Len(t, orphaned, 2, "Should find 2 weight rows without a portfolio")
	assert.Contains(t, orphaned, "99:MSFT")
	assert.Contains(t, orphaned, "99:GOOG")
}

func TestValidateNoEmptyPortfolios_AllHaveHoldings(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 1.0)

	validator := NewPortfolioValidator(db)
	empty, err := validator.ValidateNoEmptyPortfolios()
	require.NoError(t, err)
	assert.Empty(t, empty, "Should have no empty portfolios when all have weights")
}

func TestValidateNoEmptyPortfolios_EmptyPortfolio(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 1.0)
	insertTestPortfolio(t, db, 2, "empty-shell")

	validator := NewPortfolioValidator(db)
	empty, err := validator.ValidateNoEmptyPortfolios()
	require.NoError(t, err)
	assert.Len(t, empty, 1, "Should find 1 portfolio without holdings")
	assert.Contains(t, empty, "empty-shell")
}

func TestValidateWeightSums_Normalized(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 0.6)
	insertTestWeight(t, db, 1, "MSFT", 0.4)

	validator := NewPortfolioValidator(db)
	unnormalized, err := validator.ValidateWeightSums()
	require.NoError(t, err)
	assert.Empty(t, unnormalized, "Should have no offenders when weights sum to 1.0")
}

func TestValidateWeightSums_Drifted(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 0.6)
	insertTestWeight(t, db, 1, "MSFT", 0.4)
	insertTestPortfolio(t, db, 2, "growth")
	insertTestWeight(t, db, 2, "NVDA", 0.8)
	insertTestWeight(t, db, 2, "TSLA", 0.4)

	validator := NewPortfolioValidator(db)
	unnormalized, err := validator.ValidateWeightSums()
	require.NoError(t, err)
	assert.Len(t, unnormalized, 1, "Should find 1 portfolio with drifted weights")
	assert.Contains(t, unnormalized, "growth:1.2000")
}

func TestValidateWeightSums_WithinTolerance(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	// Rounding during normalization can leave tiny residuals
	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 0.3334)
	insertTestWeight(t, db, 1, "MSFT", 0.3333)
	insertTestWeight(t, db, 1, "GOOG", 0.3333)

	validator := NewPortfolioValidator(db)
	unnormalized, err := validator.ValidateWeightSums()
	require.NoError(t, err)
	assert.Empty(t, unnormalized, "Should tolerate rounding residuals below the threshold")
}

func TestValidateAll_Comprehensive(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 0.5)
	insertTestWeight(t, db, 1, "MSFT", 0.5)
	insertTestPortfolio(t, db, 2, "growth")
	insertTestWeight(t, db, 2, "NVDA", 1.0)

	validator := NewPortfolioValidator(db)
	result, err := validator.ValidateAll()
	require.NoError(t, err)
	assert.True(t, result.IsValid, "Should be valid when all checks pass")
	assert.Empty(t, result.OrphanedWeights)
	assert.Empty(t, result.EmptyPortfolios)
	assert.Empty(t, result.UnnormalizedPortfolios)
	assert.Equal(t, "All validations passed", result.FormatErrors())
}

func TestValidateAll_FailsOnOrphanedWeights(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "balanced")
	insertTestWeight(t, db, 1, "AAPL", 1.0)
	insertTestWeight(t, db, 42, "MSFT", 1.0)

	validator := NewPortfolioValidator(db)
	result, err := validator.ValidateAll()
	require.NoError(t, err)
	assert.False(t, result.IsValid, "Should be invalid when weights reference missing portfolios")
	assert.NotEmpty(t, result.OrphanedWeights)
	assert.Contains(t, result.FormatErrors(), "Orphaned weights")
}

func TestValidateAll_FailsOnEmptyPortfolio(t *testing.T) {
	db := setupTestDBForValidation(t)
	defer db.Close()

	insertTestPortfolio(t, db, 1, "empty-shell")

	validator := NewPortfolioValidator(db)
	result, err := validator.ValidateAll()
	require.NoError(t, err)
	assert.False(t, result.IsValid, "Should be invalid when a portfolio has no holdings")
	assert.NotEmpty(t, result.EmptyPortfolios)
	assert.Contains(t, result.FormatErrors(), "Empty portfolios")
}
