package portfolio

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.service.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		h.writeError(w, http.StatusInternalServerError, "Failed to list portfolios")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"portfolios": portfolios,
		"count":      len(portfolios),
	})
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var def Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.service.Create(def)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusCreated, created)
}

// HandleGet handles GET /api/portfolios/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to load portfolio")
		return
	}

	h.writeData(w, http.StatusOK, p)
}

// HandleUpdate handles PUT /api/portfolios/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var def Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	updated, err := h.service.Update(id, def)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/portfolios/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(id); err != nil {
		h.writeServiceError(w, err, "Failed to delete portfolio")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"deleted": id,
	})
}

// HandleReturns handles GET /api/portfolios/{id}/returns?days=252
func (h *Handler) HandleReturns(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Returns(id, queryInt(r, "days", 0))
	if err != nil {
		h.writeComputeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleMetrics handles GET /api/portfolios/{id}/metrics?days=252
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Metrics(id, queryInt(r, "days", 0))
	if err != nil {
		h.writeComputeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleRiskContribution handles GET /api/portfolios/{id}/risk-contribution?days=252
func (h *Handler) HandleRiskContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	result, err := h.service.RiskContribution(id, queryInt(r, "days", 0))
	if err != nil {
		h.writeComputeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleCovariance handles GET /api/portfolios/{id}/covariance?days=252&shrinkage=0.1
func (h *Handler) HandleCovariance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	shrinkage, err := queryFloat(r, "shrinkage")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Covariance(id, queryInt(r, "days", 0), shrinkage)
	if err != nil {
		h.writeComputeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleSuggestedWeights handles GET /api/portfolios/{id}/suggested-weights?days=252
func (h *Handler) HandleSuggestedWeights(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	result, err := h.service.SuggestedWeights(id, queryInt(r, "days", 0))
	if err != nil {
		h.writeComputeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleSnapshots handles GET /api/portfolios/{id}/snapshots?limit=90
func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	snapshots, err := h.service.Snapshots(id, queryInt(r, "limit", 90))
	if err != nil {
		h.writeServiceError(w, err, "Failed to load snapshots")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": id,
		"snapshots":    snapshots,
		"count":        len(snapshots),
	})
}

// portfolioID parses the {id} path parameter, writing a 400 on garbage.
func (h *Handler) portfolioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid portfolio id: "+raw)
		return 0, false
	}
	return id, true
}

// writeServiceError maps ErrNotFound to a 404 and everything else to a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, internalMsg string) {
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error().Err(err).Msg(internalMsg)
	h.writeError(w, http.StatusInternalServerError, internalMsg)
}

// writeComputeError maps errors from computation endpoints: unknown portfolio
// is a 404, everything else (structural mismatches, insufficient or missing
// history, bad parameters) surfaces as a 400 with the underlying message.
func (h *Handler) writeComputeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

// queryInt reads a positive integer query parameter, falling back to def when
// absent or invalid.
func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// queryFloat reads an optional float query parameter. Absent returns nil;
// unparseable returns an error rather than being silently dropped.
func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New("invalid " + name + " parameter: " + raw)
	}
	return &parsed, nil
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
