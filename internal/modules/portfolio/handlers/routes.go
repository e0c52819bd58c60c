package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes. Routes are registered
// individually because other modules add paths below /portfolios/{id}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios", h.HandleCreate)
	r.Get("/portfolios", h.HandleList)
	r.Get("/portfolios/{id}", h.HandleGet)
	r.Patch("/portfolios/{id}", h.HandleUpdate)

	// Target allocations
	r.Get("/portfolios/{id}/targets", h.HandleGetTargets)
	r.Put("/portfolios/{id}/targets", h.HandleSetTargets)

	// Derived views
	r.Get("/portfolios/{id}/holdings", h.HandleHoldings)
	r.Get("/portfolios/{id}/closed-positions", h.HandleClosedPositions)
}
