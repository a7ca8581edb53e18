package risk

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/metrics", h.HandleMetrics)
		r.Post("/var", h.HandleVaR)
		r.Post("/cvar", h.HandleCVaR)
		r.Post("/monte-carlo", h.HandleMonteCarlo)
	})
}
