package portfolio

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// SeriesBuilder assembles aligned per-symbol return series from stored price
// history. Symbols rarely share an identical trading calendar (holidays,
// listings, sync gaps), so closes are placed on the union of all observed
// dates, gaps are forward-filled from the previous close and leading gaps
// back-filled from the next one. After filling, every series has the same
// length and the formula layer's structural checks pass.
type SeriesBuilder struct {
	db  *sql.DB // history.db
	log zerolog.Logger
}

// NewSeriesBuilder creates a new series builder.
// db parameter should be the history.db connection.
func NewSeriesBuilder(db *sql.DB, log zerolog.Logger) *SeriesBuilder {
	return &SeriesBuilder{
		db:  db,
		log: log.With().Str("component", "series_builder").Logger(),
	}
}

// AlignedCloses holds close series on a shared date grid.
type AlignedCloses struct {
	Dates  []string             // ascending, YYYY-MM-DD
	Closes map[string][]float64 // per symbol, same length as Dates
}

// Closes fetches and aligns close prices for the given symbols over the last
// `days` calendar days. Every requested symbol must have at least one stored
// bar in the window; symbols with none are reported as an error rather than
// silently treated as flat.
func (b *SeriesBuilder) Closes(symbols []string, days int) (*AlignedCloses, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols given")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	startDate := time.Now().AddDate(0, 0, -days).Format(domain.DateFormat)

	query := `
		SELECT symbol, date, close
		FROM daily_prices
		WHERE symbol IN (` + placeholders(len(symbols)) + `)
			AND date >= ?
		ORDER BY date ASC
	`

	args := make([]interface{}, 0, len(symbols)+1)
	for _, symbol := range symbols {
		args = append(args, symbol)
	}
	args = append(args, startDate)

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	closesBySymbol := make(map[string]map[string]float64) // symbol -> date -> close
	dateSet := make(map[string]bool)

	for rows.Next() {
		var symbol, date string
		var close float64
		if err := rows.Scan(&symbol, &date, &close); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}

		if closesBySymbol[symbol] == nil {
			closesBySymbol[symbol] = make(map[string]float64)
		}
		closesBySymbol[symbol][date] = close
		dateSet[date] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}

	var missing []string
	for _, symbol := range symbols {
		if len(closesBySymbol[symbol]) == 0 {
			missing = append(missing, symbol)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("no price history for %s in the last %d days", strings.Join(missing, ", "), days)
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	if len(dates) < 2 {
		return nil, fmt.Errorf("insufficient price history: %d shared dates in the last %d days (need at least 2)", len(dates), days)
	}

	aligned := &AlignedCloses{
		Dates:  dates,
		Closes: make(map[string][]float64, len(symbols)),
	}
	for _, symbol := range symbols {
		series := make([]float64, len(dates))
		for i, date := range dates {
			if close, ok := closesBySymbol[symbol][date]; ok {
				series[i] = close
			} else {
				series[i] = math.NaN()
			}
		}
		aligned.Closes[symbol] = fillGaps(series)
	}

	b.log.Debug().
		Int("symbols", len(symbols)).
		Int("dates", len(dates)).
		Str("start_date", startDate).
		Msg("Built aligned close series")

	return aligned, nil
}

// Returns builds aligned simple-return series for the given symbols. The
// returned date slice labels each return with the date of the later close, so
// it is one shorter than the close grid.
func (b *SeriesBuilder) Returns(symbols []string, days int) (map[string][]float64, []string, error) {
	aligned, err := b.Closes(symbols, days)
	if err != nil {
		return nil, nil, err
	}

	returns := make(map[string][]float64, len(symbols))
	for symbol, closes := range aligned.Closes {
		series := make([]float64, len(closes)-1)
		for i := 1; i < len(closes); i++ {
			if closes[i-1] > 0 {
				series[i-1] = (closes[i] - closes[i-1]) / closes[i-1]
			}
		}
		returns[symbol] = series
	}

	return returns, aligned.Dates[1:], nil
}

// fillGaps forward-fills NaN gaps from the previous close, then back-fills any
// leading NaNs from the next one. Series with at least one observation come
// out gap-free.
func fillGaps(series []float64) []float64 {
	lastValid := math.NaN()
	for i := 0; i < len(series); i++ {
		if math.IsNaN(series[i]) {
			series[i] = lastValid
		} else {
			lastValid = series[i]
		}
	}

	nextValid := math.NaN()
	for i := len(series) - 1; i >= 0; i-- {
		if math.IsNaN(series[i]) {
			series[i] = nextValid
		} else {
			nextValid = series[i]
		}
	}

	return series
}

// placeholders renders "?, ?, ..." for an IN clause.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
