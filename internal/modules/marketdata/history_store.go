// Package marketdata owns the price-history store, the sync pipeline that
// fills it, and the indicator and statistics endpoints computed from it.
package marketdata

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS daily_prices (
    symbol TEXT NOT NULL,
    date TEXT NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, date)
);
`

// HistoryStore provides access to historical price data
type HistoryStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryStore wraps an already-open history database connection
func NewHistoryStore(db *sql.DB, log zerolog.Logger) *HistoryStore {
	return &HistoryStore{
		db:  db,
		log: log.With().Str("component", "history_store").Logger(),
	}
}

// OpenHistoryStore opens (creating if needed) the history database at path
func OpenHistoryStore(path string, log zerolog.Logger) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	store := NewHistoryStore(db, log)
	if err := store.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// EnsureSchema creates the daily_prices table if missing
func (s *HistoryStore) EnsureSchema() error {
	if _, err := s.db.Exec(historySchema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Conn exposes the underlying connection for components that query history
// directly, like the portfolio series builder and the backup service.
func (s *HistoryStore) Conn() *sql.DB {
	return s.db
}

// UpsertBars writes price bars for a symbol in a single transaction.
// Re-synced days overwrite their previous rows.
func (s *HistoryStore) UpsertBars(symbol string, bars []domain.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be no-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_prices
		(symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		date := bar.Date.Format(domain.DateFormat)
		if _, err := stmt.Exec(symbol, date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			return 0, fmt.Errorf("failed to insert price for %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug().
		Str("symbol", symbol).
		Int("count", len(bars)).
		Msg("Upserted price bars")

	return len(bars), nil
}

// GetDailyPrices returns the most recent `limit` bars for a symbol in
// chronological order
func (s *HistoryStore) GetDailyPrices(symbol string, limit int) ([]domain.PriceBar, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM (
			SELECT date, open, high, low, close, volume
			FROM daily_prices
			WHERE symbol = ?
			ORDER BY date DESC
			LIMIT ?
		)
		ORDER BY date ASC
	`

	rows, err := s.db.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		var bar domain.PriceBar
		var date string

		if err := rows.Scan(&date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		parsed, err := time.Parse(domain.DateFormat, date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price date %q: %w", date, err)
		}
		bar.Date = parsed
		bar.Symbol = symbol

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return bars, nil
}

// GetCloses returns the chronological close series over the most recent
// `limit` trading days
func (s *HistoryStore) GetCloses(symbol string, limit int) ([]float64, error) {
	query := `
		SELECT close
		FROM (
			SELECT date, close
			FROM daily_prices
			WHERE symbol = ?
			ORDER BY date DESC
			LIMIT ?
		)
		ORDER BY date ASC
	`

	rows, err := s.db.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var close float64
		if err := rows.Scan(&close); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes = append(closes, close)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closes: %w", err)
	}

	return closes, nil
}

// CountBars returns the number of stored bars for a symbol
func (s *HistoryStore) CountBars(symbol string) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM daily_prices WHERE symbol = ?", symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars: %w", err)
	}
	return count, nil
}

// Symbols returns the distinct symbols with stored history
func (s *HistoryStore) Symbols() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}
