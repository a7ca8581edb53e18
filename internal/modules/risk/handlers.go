package risk

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Handler handles risk HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

// MetricsRequest is the request body for POST /api/risk/metrics
type MetricsRequest struct {
	Returns         []float64 `json:"returns"`
	Benchmark       []float64 `json:"benchmark"`
	RiskFreeRate    *float64  `json:"risk_free_rate"`
	PeriodsPerYear  *int      `json:"periods_per_year"`
	ConfidenceLevel *float64  `json:"confidence_level"`
}

// VaRRequest is the request body for POST /api/risk/var and /api/risk/cvar
type VaRRequest struct {
	Returns         []float64 `json:"returns"`
	ConfidenceLevel *float64  `json:"confidence_level"`
}

// MonteCarloRequest is the request body for POST /api/risk/monte-carlo
type MonteCarloRequest struct {
	Returns         []float64 `json:"returns"`
	ConfidenceLevel *float64  `json:"confidence_level"`
	Simulations     int       `json:"simulations"`
}

// HandleMetrics handles POST /api/risk/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	metrics, err := h.service.Metrics(req.Returns, req.Benchmark, Params{
		RiskFreeRate:    req.RiskFreeRate,
		PeriodsPerYear:  req.PeriodsPerYear,
		ConfidenceLevel: req.ConfidenceLevel,
	})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, metrics)
}

// HandleVaR handles POST /api/risk/var
func (h *Handler) HandleVaR(w http.ResponseWriter, r *http.Request) {
	var req VaRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	value, confidence, err := h.service.VaR(req.Returns, req.ConfidenceLevel)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"var":              value,
		"confidence_level": confidence,
		"count":            len(req.Returns),
	})
}

// HandleCVaR handles POST /api/risk/cvar
func (h *Handler) HandleCVaR(w http.ResponseWriter, r *http.Request) {
	var req VaRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	value, confidence, err := h.service.CVaR(req.Returns, req.ConfidenceLevel)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"cvar":             value,
		"confidence_level": confidence,
		"count":            len(req.Returns),
	})
}

// HandleMonteCarlo handles POST /api/risk/monte-carlo
func (h *Handler) HandleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req MonteCarloRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.MonteCarlo(req.Returns, req.ConfidenceLevel, req.Simulations, nil)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, result)
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
