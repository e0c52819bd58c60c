// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"net/http"

	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service  *portfolio.Service
	holdings *portfolio.HoldingsService
	log      zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	service *portfolio.Service,
	holdings *portfolio.HoldingsService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		holdings: holdings,
		log:      log.With().Str("handler", "portfolio").Logger(),
	}
}

type targetsRequest struct {
	Targets []portfolio.AssetTarget `json:"targets"`
}

// authorized resolves the owner and checks it owns {id}
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, ok := httputil.OwnerID(w, r)
	if !ok {
		return "", "", false
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Authorize(r.Context(), owner, id); err != nil {
		httputil.WriteError(w, h.log, err)
		return "", "", false
	}
	return owner, id, true
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := httputil.OwnerID(w, r)
	if !ok {
		return
	}

	var input portfolio.CreateInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	p, err := h.service.Create(r.Context(), owner, input)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, p)
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := httputil.OwnerID(w, r)
	if !ok {
		return
	}

	portfolios, err := h.service.List(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"portfolios": portfolios,
		"count":      len(portfolios),
	})
}

// HandleGet handles GET /api/portfolios/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := httputil.OwnerID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}

// HandleUpdate handles PATCH /api/portfolios/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := httputil.OwnerID(w, r)
	if !ok {
		return
	}

	var input portfolio.UpdateInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	p, err := h.service.Update(r.Context(), owner, chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}

// HandleGetTargets handles GET /api/portfolios/{id}/targets
func (h *Handler) HandleGetTargets(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	targets, err := h.service.ActiveTargets(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"targets": targets})
}

// HandleSetTargets handles PUT /api/portfolios/{id}/targets
func (h *Handler) HandleSetTargets(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req targetsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	targets, err := h.service.SetTargetAllocations(r.Context(), id, req.Targets)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"targets": targets})
}

// HandleHoldings handles GET /api/portfolios/{id}/holdings
func (h *Handler) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	report, err := h.holdings.Holdings(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, report)
}

// HandleClosedPositions handles GET /api/portfolios/{id}/closed-positions
func (h *Handler) HandleClosedPositions(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	closed, err := h.holdings.ClosedPositions(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"positions": closed,
		"count":     len(closed),
	})
}
