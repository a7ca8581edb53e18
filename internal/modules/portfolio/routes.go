package portfolio

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)

			r.Get("/returns", h.HandleReturns)
			r.Get("/metrics", h.HandleMetrics)
			r.Get("/risk-contribution", h.HandleRiskContribution)
			r.Get("/covariance", h.HandleCovariance)
			r.Get("/suggested-weights", h.HandleSuggestedWeights)
			r.Get("/snapshots", h.HandleSnapshots)
		})
	})
}
