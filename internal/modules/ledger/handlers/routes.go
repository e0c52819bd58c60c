package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios/{id}/transactions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		// Lifecycle
		r.Post("/confirm", h.HandleBatchConfirm)
		r.Post("/recalculate", h.HandleRecalculate)
		r.Post("/{txId}/confirm", h.handleTransition(h.service.Confirm))
		r.Post("/{txId}/reject", h.handleTransition(h.service.Reject))
		r.Post("/{txId}/revert", h.handleTransition(h.service.Revert))

		r.Patch("/{txId}", h.HandleUpdate)
		r.Delete("/{txId}", h.HandleDelete)
	})

	r.Get("/portfolios/{id}/timeline", h.HandleTimeline)
}
