// Package yahoo fetches daily price history from Yahoo Finance.
package yahoo

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// Client wraps go-yfinance for daily OHLCV downloads
type Client struct {
	log        zerolog.Logger
	maxRetries int
}

// New creates a new Yahoo Finance client
func New(log zerolog.Logger) *Client {
	return &Client{
		log:        log.With().Str("client", "yahoo").Logger(),
		maxRetries: 3,
	}
}

// periodForDays maps a lookback in days onto the coarse period strings the
// chart API accepts. Rounds up so the caller never gets a short window.
func periodForDays(days int) string {
	switch {
	case days <= 0:
		return "1y"
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	case days <= 1825:
		return "5y"
	case days <= 3650:
		return "10y"
	default:
		return "max"
	}
}

// mapBars converts library bars into domain price bars, dropping the zero
// rows the chart API emits for holidays and halted sessions.
func mapBars(symbol string, bars []models.Bar) []domain.PriceBar {
	out := make([]domain.PriceBar, 0, len(bars))
	for _, bar := range bars {
		if bar.Close <= 0 {
			continue
		}
		out = append(out, domain.PriceBar{
			Date:   bar.Date,
			Symbol: symbol,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: int64(bar.Volume),
		})
	}
	return out
}

// GetDailyBars fetches daily bars covering at least the given lookback window.
// Retries with exponential backoff on transient failures.
func (c *Client) GetDailyBars(symbol string, lookbackDays int) ([]domain.PriceBar, error) {
	params := models.HistoryParams{
		Period:     periodForDays(lookbackDays),
		Interval:   "1d",
		AutoAdjust: true,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			waitTime := time.Duration(1<<uint(attempt-1)) * time.Second
			c.log.Warn().Err(lastErr).Str("symbol", symbol).Int("attempt", attempt+1).Dur("wait", waitTime).Msg("Retrying history fetch")
			time.Sleep(waitTime)
		}

		bars, err := c.fetchHistory(symbol, params)
		if err != nil {
			lastErr = err
			continue
		}

		mapped := mapBars(symbol, bars)
		if len(mapped) == 0 {
			lastErr = fmt.Errorf("no usable bars returned for %s", symbol)
			continue
		}
		return mapped, nil
	}

	return nil, fmt.Errorf("failed to fetch history for %s after %d attempts: %w", symbol, c.maxRetries, lastErr)
}

func (c *Client) fetchHistory(symbol string, params models.HistoryParams) ([]models.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker for %s: %w", symbol, err)
	}
	defer t.Close()

	bars, err := t.History(params)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", symbol, err)
	}

	return bars, nil
}
