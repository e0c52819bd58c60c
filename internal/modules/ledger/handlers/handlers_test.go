package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/modules/ledger"
	testingpkg "github.com/aristath/carteira/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ownerAuthorizer map[string]string

func (a ownerAuthorizer) Authorize(_ context.Context, ownerID, portfolioID string) error {
	if a[portfolioID] != ownerID {
		return domain.NewNotFound("portfolio", portfolioID)
	}
	return nil
}

func setupRouter(t *testing.T) (chi.Router, *ledger.TransactionRepository) {
	db := testingpkg.NewTestDB(t, "ledger")
	log := zerolog.Nop()
	repo := ledger.NewTransactionRepository(db.Conn(), log)
	clock := testingpkg.NewFixedClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	service := ledger.NewService(db.Conn(), repo, &testingpkg.MockInvalidator{}, &testingpkg.RecordingEmitter{}, clock, log)

	handler := NewHandler(service, ownerAuthorizer{"p1": "alice"}, log)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, repo
}

func do(router http.Handler, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(httputil.OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestHandleCreateAndList(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(router, http.MethodPost, "/portfolios/p1/transactions", "alice", map[string]interface{}{
		"date": "2024-06-10", "type": "CASH_CREDIT", "amount": 1000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Transaction
	decodeData(t, rec, &created)
	assert.Equal(t, domain.StatusExecuted, created.Status)

	rec = do(router, http.MethodGet, "/portfolios/p1/transactions?type=CASH_CREDIT&from=2024-06-01", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Transactions []domain.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	decodeData(t, rec, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, created.ID, list.Transactions[0].ID)
}

func TestHandleCreate_InsufficientCash(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(router, http.MethodPost, "/portfolios/p1/transactions", "alice", map[string]interface{}{
		"type": "BUY", "ticker": "AAA", "quantity": 1, "amount": 50,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Code    string                       `json:"code"`
		Details domain.InsufficientCashError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.CodeInsufficientCash, body.Code)
	assert.Equal(t, 50.0, body.Details.Shortfall)
}

func TestHandle_OwnershipAndAuth(t *testing.T) {
	router, _ := setupRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/portfolios/p1/transactions", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/portfolios/p1/transactions", "mallory", nil).Code)
}

func TestHandleTransitions(t *testing.T) {
	router, repo := setupRouter(t)
	ctx := context.Background()

	credit := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 6, 1), 500)
	credit.Status = domain.StatusPending
	credit.IsAutoSuggested = true
	require.NoError(t, repo.Create(ctx, &credit))

	rec := do(router, http.MethodPost, "/portfolios/p1/transactions/"+credit.ID+"/confirm", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(router, http.MethodPost, "/portfolios/p1/transactions/"+credit.ID+"/reject", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(router, http.MethodPost, "/portfolios/p1/transactions/"+credit.ID+"/revert", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodPost, "/portfolios/p1/transactions/confirm", "alice", map[string]interface{}{
		"ids": []string{credit.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, "/portfolios/p1/timeline", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var timeline struct {
		CashBalance float64 `json:"cash_balance"`
	}
	decodeData(t, rec, &timeline)
	assert.Equal(t, 500.0, timeline.CashBalance)
}

func TestHandleUpdateAndDelete(t *testing.T) {
	router, repo := setupRouter(t)
	ctx := context.Background()

	credit := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 6, 1), 500)
	require.NoError(t, repo.Create(ctx, &credit))

	rec := do(router, http.MethodPatch, "/portfolios/p1/transactions/"+credit.ID, "alice", map[string]interface{}{
		"amount": 750, "notes": "corrected",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated domain.Transaction
	decodeData(t, rec, &updated)
	assert.Equal(t, 750.0, updated.Amount)
	assert.Equal(t, "corrected", updated.Notes)

	rec = do(router, http.MethodPatch, "/portfolios/p1/transactions/"+credit.ID, "alice", map[string]interface{}{
		"date": "06/01/2024",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(router, http.MethodDelete, "/portfolios/p1/transactions/"+credit.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(router, http.MethodDelete, "/portfolios/p1/transactions/"+credit.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleList_BadDate(t *testing.T) {
	router, _ := setupRouter(t)
	rec := do(router, http.MethodGet, "/portfolios/p1/transactions?from=yesterday", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
