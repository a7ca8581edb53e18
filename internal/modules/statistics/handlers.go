package statistics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Handler handles statistics HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new statistics handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "statistics").Logger(),
	}
}

// DescribeRequest is the request body for POST /api/statistics/describe
type DescribeRequest struct {
	Series []float64 `json:"series"`
}

// PercentileRequest is the request body for POST /api/statistics/percentile
type PercentileRequest struct {
	Series []float64 `json:"series"`
	P      float64   `json:"p"`
}

// ReturnsRequest is the request body for POST /api/statistics/returns
type ReturnsRequest struct {
	Prices []float64 `json:"prices"`
	Method string    `json:"method"`
}

// CumulativeRequest is the request body for POST /api/statistics/cumulative
type CumulativeRequest struct {
	Returns []float64 `json:"returns"`
	// InitialValue defaults to 1 when omitted. A pointer keeps an explicit
	// zero distinguishable from an absent field.
	InitialValue *float64 `json:"initial_value"`
}

// DrawdownsRequest is the request body for POST /api/statistics/drawdowns
type DrawdownsRequest struct {
	Returns []float64 `json:"returns"`
}

// HandleDescribe handles POST /api/statistics/describe
func (h *Handler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	var req DescribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// An empty series is not an error: every summary field is 0 by contract.
	result := h.service.Describe(req.Series)

	h.writeData(w, http.StatusOK, result)
}

// HandlePercentile handles POST /api/statistics/percentile
func (h *Handler) HandlePercentile(w http.ResponseWriter, r *http.Request) {
	var req PercentileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	value, err := h.service.Percentile(req.Series, req.P)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"p":          req.P,
		"count":      len(req.Series),
		"percentile": value,
	})
}

// HandleReturns handles POST /api/statistics/returns
func (h *Handler) HandleReturns(w http.ResponseWriter, r *http.Request) {
	var req ReturnsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	method := req.Method
	if method == "" {
		method = "simple"
	}

	returns, err := h.service.Returns(req.Prices, method)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"method":  method,
		"count":   len(returns),
		"returns": returns,
	})
}

// HandleCumulative handles POST /api/statistics/cumulative
func (h *Handler) HandleCumulative(w http.ResponseWriter, r *http.Request) {
	var req CumulativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	initialValue := formulas.DefaultInitialValue
	if req.InitialValue != nil {
		initialValue = *req.InitialValue
	}

	values := h.service.Cumulative(req.Returns, initialValue)

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"initial_value": initialValue,
		"cumulative":    values,
	})
}

// HandleDrawdowns handles POST /api/statistics/drawdowns
func (h *Handler) HandleDrawdowns(w http.ResponseWriter, r *http.Request) {
	var req DrawdownsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	report := h.service.Drawdowns(req.Returns)

	h.writeData(w, http.StatusOK, report)
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
