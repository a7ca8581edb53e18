package marketdata

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all security market-data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/securities/{symbol}", func(r chi.Router) {
		r.Get("/statistics", h.HandleGetStatistics)
		r.Get("/indicators", h.HandleGetIndicators)
		r.Get("/prices", h.HandleGetPrices)
	})
}
