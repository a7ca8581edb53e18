package marketdata

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/modules/risk"
	"github.com/aristath/portfolio-analytics/internal/modules/statistics"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

const (
	defaultLookbackBars    = 252
	defaultIndicatorPeriod = 20
)

// Handler handles security market-data HTTP requests
type Handler struct {
	store      *HistoryStore
	statistics *statistics.Service
	risk       *risk.Service
	log        zerolog.Logger
}

// NewHandler creates a new marketdata handler
func NewHandler(store *HistoryStore, statisticsService *statistics.Service, riskService *risk.Service, log zerolog.Logger) *Handler {
	return &Handler{
		store:      store,
		statistics: statisticsService,
		risk:       riskService,
		log:        log.With().Str("handler", "marketdata").Logger(),
	}
}

// HandleGetStatistics handles GET /api/securities/{symbol}/statistics.
// The days parameter limits how many of the most recent daily bars feed the
// computation; statistics and ratios are taken over the daily simple returns.
func (h *Handler) HandleGetStatistics(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	days := queryInt(r, "days", defaultLookbackBars)

	closes, err := h.store.GetCloses(symbol, days)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load close series")
		h.writeError(w, http.StatusInternalServerError, "Failed to load price history")
		return
	}
	if len(closes) == 0 {
		h.writeError(w, http.StatusNotFound, "No stored history for "+symbol)
		return
	}

	returns := formulas.SimpleReturns(closes)
	metrics, err := h.risk.Metrics(returns, nil, risk.Params{})
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to compute risk metrics")
		h.writeError(w, http.StatusInternalServerError, "Failed to compute risk metrics")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"symbol":     symbol,
		"bars":       len(closes),
		"statistics": h.statistics.Describe(returns),
		"risk":       metrics,
	})
}

// HandleGetIndicators handles GET /api/securities/{symbol}/indicators.
// period sets the indicator window; indicators the series is too short for
// are omitted from the snapshot.
func (h *Handler) HandleGetIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	days := queryInt(r, "days", defaultLookbackBars)
	period := queryInt(r, "period", defaultIndicatorPeriod)

	closes, err := h.store.GetCloses(symbol, days)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load close series")
		h.writeError(w, http.StatusInternalServerError, "Failed to load price history")
		return
	}
	if len(closes) == 0 {
		h.writeError(w, http.StatusNotFound, "No stored history for "+symbol)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"symbol":     symbol,
		"period":     period,
		"bars":       len(closes),
		"last_close": closes[len(closes)-1],
		"indicators": ComputeIndicators(closes, period),
	})
}

// HandleGetPrices handles GET /api/securities/{symbol}/prices
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	days := queryInt(r, "days", defaultLookbackBars)

	bars, err := h.store.GetDailyPrices(symbol, days)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load price history")
		h.writeError(w, http.StatusInternalServerError, "Failed to load price history")
		return
	}
	if len(bars) == 0 {
		h.writeError(w, http.StatusNotFound, "No stored history for "+symbol)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
		"prices": bars,
	})
}

// queryInt reads a positive integer query parameter, falling back to def when
// the parameter is absent, unparseable, or not positive.
func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// writeData wraps a payload in the standard data/metadata envelope
func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
