// Package handlers provides HTTP handlers for suggestion generation and the
// rebalance decision log.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/modules/suggestions"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultDecisionLimit = 100

// Authorizer checks that an owner may access a portfolio
type Authorizer interface {
	Authorize(ctx context.Context, ownerID, portfolioID string) error
}

// Handler handles suggestion HTTP requests
type Handler struct {
	engine *suggestions.Engine
	auth   Authorizer
	log    zerolog.Logger
}

// NewHandler creates a new suggestions handler
func NewHandler(engine *suggestions.Engine, auth Authorizer, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		auth:   auth,
		log:    log.With().Str("handler", "suggestions").Logger(),
	}
}

func (h *Handler) portfolioID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := httputil.OwnerID(w, r)
	if !ok {
		return "", false
	}
	id := chi.URLParam(r, "id")
	if err := h.auth.Authorize(r.Context(), owner, id); err != nil {
		httputil.WriteError(w, h.log, err)
		return "", false
	}
	return id, true
}

// HandleGenerate handles POST /api/portfolios/{id}/suggestions
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Generate(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// HandleDecisions handles GET /api/portfolios/{id}/decisions
func (h *Handler) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	limit := defaultDecisionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	decisions, err := h.engine.Decisions(r.Context(), id, limit)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}
