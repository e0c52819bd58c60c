// Package handlers provides HTTP handlers for portfolio metrics.
package handlers

import (
	"context"
	"net/http"

	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/modules/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Authorizer checks that an owner may access a portfolio
type Authorizer interface {
	Authorize(ctx context.Context, ownerID, portfolioID string) error
}

// Handler handles metrics HTTP requests
type Handler struct {
	engine *metrics.Engine
	auth   Authorizer
	log    zerolog.Logger
}

// NewHandler creates a new metrics handler
func NewHandler(engine *metrics.Engine, auth Authorizer, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		auth:   auth,
		log:    log.With().Str("handler", "metrics").Logger(),
	}
}

// HandleGetMetrics handles GET /api/portfolios/{id}/metrics.
// refresh=true forces a recomputation.
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	owner, ok := httputil.OwnerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.auth.Authorize(r.Context(), owner, id); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	var snapshot *metrics.Snapshot
	var err error
	if r.URL.Query().Get("refresh") == "true" {
		snapshot, err = h.engine.Compute(r.Context(), id)
	} else {
		snapshot, err = h.engine.Get(r.Context(), id)
	}
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, snapshot)
}
