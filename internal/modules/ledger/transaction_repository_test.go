package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/modules/accounting"
	testingpkg "github.com/aristath/carteira/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *TransactionRepository {
	db := testingpkg.NewTestDB(t, "ledger")
	return NewTransactionRepository(db.Conn(), zerolog.Nop())
}

func TestTransactionRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := domain.Transaction{
		PortfolioID: "p1",
		Date:        time.Date(2024, 3, 5, 15, 30, 0, 0, time.UTC),
		Type:        domain.TypeBuy,
		Ticker:      "petr4",
		Quantity:    10,
		Price:       38.5,
		Amount:      385,
		Status:      domain.StatusPending,
		Notes:       "monthly buy",
	}
	require.NoError(t, repo.Create(ctx, &tx))
	assert.NotEmpty(t, tx.ID)

	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PETR4", got.Ticker)
	assert.Equal(t, testingpkg.Date(2024, 3, 5), got.Date)
	assert.Equal(t, domain.TypeBuy, got.Type)
	assert.Equal(t, 10.0, got.Quantity)
	assert.Equal(t, 38.5, got.Price)
	assert.Equal(t, 385.0, got.Amount)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "monthly buy", got.Notes)
	assert.Nil(t, got.CashBalanceBefore)
}

func TestTransactionRepository_GetByID_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransactionRepository_CashEventStoresNulls(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 1), 1000)
	require.NoError(t, repo.Create(ctx, &tx))

	var ticker, price, quantity interface{}
	row := repo.db.QueryRowContext(ctx, "SELECT ticker, price, quantity FROM transactions WHERE id = ?", tx.ID)
	require.NoError(t, row.Scan(&ticker, &price, &quantity))
	assert.Nil(t, ticker)
	assert.Nil(t, price)
	assert.Nil(t, quantity)
}

func TestTransactionRepository_UpdateStatusAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 1), 1000)
	tx.Status = domain.StatusPending
	require.NoError(t, repo.Create(ctx, &tx))

	require.NoError(t, repo.UpdateStatus(ctx, tx.ID, domain.StatusConfirmed))
	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)

	require.NoError(t, repo.Delete(ctx, tx.ID))
	err = repo.Delete(ctx, tx.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = repo.UpdateStatus(ctx, "missing", domain.StatusRejected)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTransactionRepository_Update(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := testingpkg.NewTransaction("p1", testingpkg.Date(2024, 1, 2), domain.TypeBuy, "AAA", 10, 100)
	tx.Status = domain.StatusExecuted
	require.NoError(t, repo.Create(ctx, &tx))

	tx.Quantity = 12
	tx.Amount = 120
	tx.Date = testingpkg.Date(2024, 1, 3)
	require.NoError(t, repo.Update(ctx, &tx))

	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.Quantity)
	assert.Equal(t, 120.0, got.Amount)
	assert.Equal(t, testingpkg.Date(2024, 1, 3), got.Date)
}

func TestTransactionRepository_List(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rows := []domain.Transaction{
		testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 1), 1000),
		testingpkg.NewTransaction("p1", testingpkg.Date(2024, 1, 5), domain.TypeBuy, "AAA", 5, 500),
		testingpkg.NewTransaction("p1", testingpkg.Date(2024, 2, 5), domain.TypeBuy, "BBB", 5, 200),
		testingpkg.NewTransaction("p2", testingpkg.Date(2024, 1, 5), domain.TypeBuy, "AAA", 1, 10),
	}
	rows[2].Status = domain.StatusPending
	rows[2].IsAutoSuggested = true
	for i := range rows {
		require.NoError(t, repo.Create(ctx, &rows[i]))
	}

	t.Run("by portfolio ordered by date", func(t *testing.T) {
		got, err := repo.List(ctx, Filter{PortfolioID: "p1"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, domain.TypeCashCredit, got[0].Type)
		assert.Equal(t, "BBB", got[2].Ticker)
	})

	t.Run("settled only", func(t *testing.T) {
		got, err := repo.ListSettled(ctx, "p1")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("pending auto", func(t *testing.T) {
		got, err := repo.ListPendingAuto(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "BBB", got[0].Ticker)
	})

	t.Run("type ticker and date range", func(t *testing.T) {
		from := testingpkg.Date(2024, 1, 2)
		to := testingpkg.Date(2024, 1, 31)
		got, err := repo.List(ctx, Filter{
			PortfolioID: "p1",
			Types:       []domain.TransactionType{domain.TypeBuy},
			Ticker:      "aaa",
			From:        &from,
			To:          &to,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 500.0, got[0].Amount)
	})
}

func TestTransactionRepository_LastSettledDate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	last, err := repo.LastSettledDate(ctx, "p1", domain.TypeCashCredit)
	require.NoError(t, err)
	assert.Nil(t, last)

	first := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 10), 1000)
	second := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 2, 10), 1000)
	pending := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 3, 10), 1000)
	pending.Status = domain.StatusPending
	for _, tx := range []*domain.Transaction{&first, &second, &pending} {
		require.NoError(t, repo.Create(ctx, tx))
	}

	last, err = repo.LastSettledDate(ctx, "p1", domain.TypeCashCredit, domain.TypeMonthlyContribution)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, testingpkg.Date(2024, 2, 10), *last)
}

func TestTransactionRepository_DeleteStalePending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stale := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 10), 1000)
	stale.Status = domain.StatusPending
	stale.IsAutoSuggested = true
	current := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 2, 1), 1000)
	current.Status = domain.StatusPending
	current.IsAutoSuggested = true
	manual := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 10), 500)
	manual.Status = domain.StatusPending
	confirmed := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 5), 100)
	confirmed.IsAutoSuggested = true
	for _, tx := range []*domain.Transaction{&stale, &current, &manual, &confirmed} {
		require.NoError(t, repo.Create(ctx, tx))
	}

	deleted, err := repo.DeleteStalePending(ctx, "p1", testingpkg.Date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransactionRepository_UpdateCashBalances(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	credit := testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 1, 1), 1000)
	buy := testingpkg.NewTransaction("p1", testingpkg.Date(2024, 1, 2), domain.TypeBuy, "AAA", 2, 300)
	pending := testingpkg.NewTransaction("p1", testingpkg.Date(2024, 1, 3), domain.TypeBuy, "BBB", 1, 50)
	pending.Status = domain.StatusPending
	before := 1.0
	pending.CashBalanceBefore = &before
	for _, tx := range []*domain.Transaction{&credit, &buy, &pending} {
		require.NoError(t, repo.Create(ctx, tx))
	}

	all, err := repo.List(ctx, Filter{PortfolioID: "p1"})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateCashBalances(ctx, "p1", accounting.RunningBalances(all)))

	got, err := repo.GetByID(ctx, buy.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CashBalanceBefore)
	assert.Equal(t, 1000.0, *got.CashBalanceBefore)
	assert.Equal(t, 700.0, *got.CashBalanceAfter)

	got, err = repo.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CashBalanceBefore)
}
