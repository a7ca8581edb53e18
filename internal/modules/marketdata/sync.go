package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// initialSeedDays is the lookback used the first time a symbol is synced.
// Later syncs only refresh the configured window.
const initialSeedDays = 1825

// PriceSource fetches daily bars for a symbol
type PriceSource interface {
	GetDailyBars(symbol string, lookbackDays int) ([]domain.PriceBar, error)
}

// SymbolProvider lists the symbols that should have price history
type SymbolProvider interface {
	AllSymbols() ([]string, error)
}

// SyncStateRepo persists per-symbol sync state in the cache database
type SyncStateRepo struct {
	db  *sql.DB // cache.db
	log zerolog.Logger
}

// NewSyncStateRepo creates a new sync state repository
func NewSyncStateRepo(db *sql.DB, log zerolog.Logger) *SyncStateRepo {
	return &SyncStateRepo{
		db:  db,
		log: log.With().Str("repository", "sync_state").Logger(),
	}
}

// Upsert records a successful sync for a symbol
func (r *SyncStateRepo) Upsert(symbol string, at time.Time, bars int64) error {
	_, err := r.db.Exec(`
		INSERT INTO sync_state (symbol, last_synced_at, bars)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			bars = excluded.bars
	`, symbol, at.Format(time.RFC3339), bars)
	if err != nil {
		return fmt.Errorf("failed to upsert sync state for %s: %w", symbol, err)
	}
	return nil
}

// GetAll returns sync state for every tracked symbol
func (r *SyncStateRepo) GetAll() ([]domain.SyncState, error) {
	rows, err := r.db.Query("SELECT symbol, last_synced_at, bars FROM sync_state ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}
	defer rows.Close()

	var states []domain.SyncState
	for rows.Next() {
		var state domain.SyncState
		var lastSynced string

		if err := rows.Scan(&state.Symbol, &lastSynced, &state.Bars); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339, lastSynced)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", state.Symbol).Msg("Failed to parse sync timestamp")
		} else {
			state.LastSyncedAt = parsed
		}

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync state: %w", err)
	}

	return states, nil
}

// SyncResult summarizes one sync cycle
type SyncResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Bars    int `json:"bars"`
	Skipped int `json:"skipped"`
}

// SyncService downloads price history for every portfolio symbol
type SyncService struct {
	source         PriceSource
	store          *HistoryStore
	symbols        SymbolProvider
	syncState      *SyncStateRepo
	rateLimitDelay time.Duration
	lookbackDays   int
	log            zerolog.Logger
}

// NewSyncService creates a new sync service
func NewSyncService(
	source PriceSource,
	store *HistoryStore,
	symbols SymbolProvider,
	syncState *SyncStateRepo,
	rateLimitDelay time.Duration,
	lookbackDays int,
	log zerolog.Logger,
) *SyncService {
	return &SyncService{
		source:         source,
		store:          store,
		symbols:        symbols,
		syncState:      syncState,
		rateLimitDelay: rateLimitDelay,
		lookbackDays:   lookbackDays,
		log:            log.With().Str("service", "price_sync").Logger(),
	}
}

// SyncAll refreshes history for every symbol referenced by stored portfolios.
// A failure on one symbol is logged and does not abort the cycle.
func (s *SyncService) SyncAll() (*SyncResult, error) {
	symbols, err := s.symbols.AllSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}

	result := &SyncResult{}
	if len(symbols) == 0 {
		s.log.Info().Msg("No portfolio symbols to sync")
		return result, nil
	}

	s.log.Info().Int("symbols", len(symbols)).Msg("Starting price sync cycle")

	for i, symbol := range symbols {
		// Rate limit between symbols, not before the first
		if i > 0 && s.rateLimitDelay > 0 {
			time.Sleep(s.rateLimitDelay)
		}

		bars, err := s.SyncSymbol(symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to sync symbol")
			result.Failed++
			continue
		}
		if bars == 0 {
			result.Skipped++
			continue
		}

		result.Synced++
		result.Bars += bars
	}

	s.log.Info().
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Int("bars", result.Bars).
		Msg("Price sync cycle complete")

	return result, nil
}

// SyncSymbol refreshes history for one symbol and records its sync state.
// Returns the number of bars written.
func (s *SyncService) SyncSymbol(symbol string) (int, error) {
	// First sync seeds a long window so annualized metrics have depth;
	// later syncs only refresh the configured lookback
	lookback := s.lookbackDays
	existing, err := s.store.CountBars(symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing bars: %w", err)
	}
	if existing == 0 {
		lookback = initialSeedDays
		s.log.Info().Str("symbol", symbol).Msg("No stored history, performing initial seed")
	}

	bars, err := s.source.GetDailyBars(symbol, lookback)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch bars: %w", err)
	}

	if len(bars) == 0 {
		s.log.Warn().Str("symbol", symbol).Msg("No price data returned")
		return 0, nil
	}

	written, err := s.store.UpsertBars(symbol, bars)
	if err != nil {
		return 0, fmt.Errorf("failed to store bars: %w", err)
	}

	total, err := s.store.CountBars(symbol)
	if err != nil {
		total = int64(written)
	}

	if err := s.syncState.Upsert(symbol, time.Now(), total); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to record sync state")
	}

	return written, nil
}
