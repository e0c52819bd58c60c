package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/modules/ledger"
	"github.com/aristath/carteira/internal/modules/portfolio"
	"github.com/aristath/carteira/internal/modules/suggestions"
	testingpkg "github.com/aristath/carteira/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (chi.Router, string) {
	ctx := context.Background()
	log := zerolog.Nop()
	ledgerDB := testingpkg.NewTestDB(t, "ledger")
	portfolioDB := testingpkg.NewTestDB(t, "portfolio")

	portfolios := portfolio.NewService(portfolio.NewRepository(portfolioDB.Conn(), log), &testingpkg.RecordingEmitter{}, &testingpkg.MockInvalidator{}, log)
	p, err := portfolios.Create(ctx, "alice", portfolio.CreateInput{Name: "Renda", MonthlyContribution: 600})
	require.NoError(t, err)
	_, err = portfolios.SetTargetAllocations(ctx, p.ID, []portfolio.AssetTarget{{Ticker: "AAA", TargetAllocation: 1}})
	require.NoError(t, err)

	quotes := testingpkg.NewMockQuoteProvider()
	quotes.SetLatest("AAA", 20)

	engine := suggestions.NewEngine(
		ledgerDB.Conn(),
		ledger.NewTransactionRepository(ledgerDB.Conn(), log),
		portfolios,
		quotes,
		testingpkg.NewMockDividendProvider(),
		suggestions.NewDecisionRepository(portfolioDB.Conn(), log),
		&testingpkg.MockInvalidator{},
		&testingpkg.RecordingEmitter{},
		testingpkg.NewFixedClock(time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)),
		accounting.DefaultThreshold,
		log,
	)

	router := chi.NewRouter()
	NewHandler(engine, portfolios, log).RegisterRoutes(router)
	return router, p.ID
}

func do(router http.Handler, method, path, owner string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if owner != "" {
		req.Header.Set(httputil.OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleGenerateAndDecisions(t *testing.T) {
	router, id := setupRouter(t)

	rec := do(router, http.MethodPost, "/portfolios/"+id+"/suggestions", "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var generated struct {
		Data suggestions.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &generated))
	require.Len(t, generated.Data.Suggestions, 2)
	assert.Equal(t, 30.0, generated.Data.Suggestions[1].Quantity)

	rec = do(router, http.MethodGet, "/portfolios/"+id+"/decisions?limit=5", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var log struct {
		Data struct {
			Decisions []suggestions.RebalanceDecision `json:"decisions"`
			Count     int                             `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &log))
	assert.Equal(t, 1, log.Data.Count)
	assert.Equal(t, suggestions.ActionBuy, log.Data.Decisions[0].Action)
}

func TestHandleDecisions_Validation(t *testing.T) {
	router, id := setupRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/portfolios/"+id+"/decisions?limit=x", "alice").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/portfolios/"+id+"/suggestions", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/portfolios/"+id+"/suggestions", "bob").Code)
}
