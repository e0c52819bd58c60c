package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers metrics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{id}/metrics", h.HandleGetMetrics)
}
