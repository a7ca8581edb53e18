package statistics

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all statistics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/statistics", func(r chi.Router) {
		r.Post("/describe", h.HandleDescribe)
		r.Post("/percentile", h.HandlePercentile)
		r.Post("/returns", h.HandleReturns)
		r.Post("/cumulative", h.HandleCumulative)
		r.Post("/drawdowns", h.HandleDrawdowns)
	})
}
