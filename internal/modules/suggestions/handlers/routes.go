package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers suggestion routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios/{id}/suggestions", h.HandleGenerate)
	r.Get("/portfolios/{id}/decisions", h.HandleDecisions)
}
