// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/modules/ledger"
	"github.com/aristath/carteira/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Authorizer checks that ownerID owns portfolioID
type Authorizer interface {
	Authorize(ctx context.Context, ownerID, portfolioID string) error
}

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
	auth    Authorizer
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(
	service *ledger.Service,
	auth Authorizer,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		auth:    auth,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

type transactionRequest struct {
	Date     string                  `json:"date"`
	Type     *domain.TransactionType `json:"type"`
	Ticker   *string                 `json:"ticker"`
	Notes    *string                 `json:"notes"`
	Amount   *float64                `json:"amount"`
	Price    *float64                `json:"price"`
	Quantity *float64                `json:"quantity"`
}

type batchConfirmRequest struct {
	IDs []string `json:"ids"`
}

// portfolioID resolves and authorizes the {id} path parameter
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

// HandleList handles GET /api/portfolios/{id}/transactions
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := ledger.Filter{Ticker: q.Get("ticker")}
	for _, s := range utils.ParseTickers(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, domain.TransactionStatus(s))
	}
	for _, t := range utils.ParseTickers(q.Get("type")) {
		filter.Types = append(filter.Types, domain.TransactionType(t))
	}
	if from := q.Get("from"); from != "" {
		d, err := utils.ParseDate(from)
		if err != nil {
			httputil.BadRequest(w, "invalid from date")
			return
		}
		filter.From = &d
	}
	if to := q.Get("to"); to != "" {
		d, err := utils.ParseDate(to)
		if err != nil {
			httputil.BadRequest(w, "invalid to date")
			return
		}
		filter.To = &d
	}

	txs, err := h.service.List(r.Context(), portfolioID, filter)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// HandleCreate handles POST /api/portfolios/{id}/transactions
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	input := ledger.ManualInput{}
	if patch.Date != nil {
		input.Date = *patch.Date
	}
	if patch.Type != nil {
		input.Type = *patch.Type
	}
	if patch.Ticker != nil {
		input.Ticker = *patch.Ticker
	}
	if patch.Notes != nil {
		input.Notes = *patch.Notes
	}
	if patch.Amount != nil {
		input.Amount = *patch.Amount
	}
	if patch.Price != nil {
		input.Price = *patch.Price
	}
	if patch.Quantity != nil {
		input.Quantity = *patch.Quantity
	}

	tx, err := h.service.CreateManual(r.Context(), portfolioID, input)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, tx)
}

// HandleUpdate handles PATCH /api/portfolios/{id}/transactions/{txId}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	tx, err := h.service.Update(r.Context(), portfolioID, chi.URLParam(r, "txId"), patch)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, tx)
}

// HandleDelete handles DELETE /api/portfolios/{id}/transactions/{txId}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), portfolioID, chi.URLParam(r, "txId")); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, portfolioID, id string) (*domain.Transaction, error)

// handleTransition serves confirm, reject and revert
func (h *Handler) handleTransition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		portfolioID, ok := h.portfolioID(w, r)
		if !ok {
			return
		}

		tx, err := fn(r.Context(), portfolioID, chi.URLParam(r, "txId"))
		if err != nil {
			httputil.WriteError(w, h.log, err)
			return
		}
		httputil.WriteData(w, http.StatusOK, tx)
	}
}

// HandleBatchConfirm handles POST /api/portfolios/{id}/transactions/confirm
func (h *Handler) HandleBatchConfirm(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var req batchConfirmRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	confirmed, err := h.service.BatchConfirm(r.Context(), portfolioID, req.IDs)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"transactions": confirmed,
		"count":        len(confirmed),
	})
}

// HandleRecalculate handles POST /api/portfolios/{id}/transactions/recalculate
func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	count, err := h.service.RecalculateCashBalances(r.Context(), portfolioID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"updated": count})
}

// HandleTimeline handles GET /api/portfolios/{id}/timeline
func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	timeline, err := h.service.Timeline(r.Context(), portfolioID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	balance := 0.0
	if n := len(timeline); n > 0 {
		balance = *timeline[n-1].CashBalanceAfter
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"transactions": timeline,
		"cash_balance": balance,
	})
}

func (req transactionRequest) toPatch() (ledger.Patch, error) {
	patch := ledger.Patch{
		Type:     req.Type,
		Notes:    req.Notes,
		Amount:   req.Amount,
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	if req.Ticker != nil {
		t := strings.TrimSpace(*req.Ticker)
		patch.Ticker = &t
	}
	if req.Date != "" {
		d, err := time.Parse(utils.DateLayout, req.Date)
		if err != nil {
			return patch, domain.NewValidation("date", "must be formatted as %s", utils.DateLayout)
		}
		patch.Date = &d
	}
	return patch, nil
}
