package accounting

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seq int

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func tx(date time.Time, typ domain.TransactionType, ticker string, qty, amount float64) domain.Transaction {
	seq++
	price := 0.0
	if qty > 0 {
		price = amount / qty
	}
	return domain.Transaction{
		ID:       fmt.Sprintf("tx-%03d", seq),
		Date:     date,
		Type:     typ,
		Ticker:   ticker,
		Quantity: qty,
		Price:    price,
		Amount:   amount,
		Status:   domain.StatusConfirmed,
	}
}

func credit(date time.Time, amount float64) domain.Transaction {
	return tx(date, domain.TypeCashCredit, "", 0, amount)
}

func TestReconstructHoldings_AverageCostOnSale(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 2), 1000),
		tx(day(1, 3), domain.TypeBuy, "AAA", 10, 100),
		tx(day(2, 3), domain.TypeBuy, "AAA", 10, 200),
		tx(day(3, 3), domain.TypeSellRebalance, "AAA", 5, 125),
	}

	holdings, err := ReconstructHoldings(txs)
	require.NoError(t, err)
	require.Contains(t, holdings, "AAA")

	aaa := holdings["AAA"]
	assert.InDelta(t, 15.0, aaa.Quantity, 1e-9)
	// 300 - 15 x 5, not 300 - 125
	assert.InDelta(t, 225.0, aaa.TotalInvested, 1e-9)
	assert.InDelta(t, 15.0, aaa.AverageCost(), 1e-9)
	assert.InDelta(t, 50.0, aaa.RealizedGain, 1e-9)
}

func TestReconstructHoldings_CostBasisInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := NewLedger()

	for i := 0; i < 200; i++ {
		if rng.Intn(3) > 0 || !l.Holdings()["AAA"].IsOpen() {
			qty := float64(rng.Intn(20) + 1)
			l.Apply(tx(day(1, 1).AddDate(0, 0, i), domain.TypeBuy, "AAA", qty, qty*(10+rng.Float64()*10)))
			continue
		}

		before := l.Holdings()["AAA"]
		qty := float64(rng.Intn(int(before.Quantity)) + 1)
		if qty > before.Quantity {
			qty = before.Quantity
		}
		l.Apply(tx(day(1, 1).AddDate(0, 0, i), domain.TypeSellWithdrawal, "AAA", qty, qty*rng.Float64()*40))

		after := l.positions["AAA"]
		assert.InDelta(t, before.TotalInvested-before.AverageCost()*qty, after.TotalInvested, 1e-6)
	}
	assert.NoError(t, l.Err())
}

func TestReconstructHoldings_ClosedPositionsExcluded(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 2), 1000),
		tx(day(1, 3), domain.TypeBuy, "AAA", 10, 100),
		tx(day(1, 3), domain.TypeBuy, "BBB", 5, 100),
		tx(day(2, 1), domain.TypeSellWithdrawal, "AAA", 10, 150),
	}

	holdings, err := ReconstructHoldings(txs)
	require.NoError(t, err)
	assert.NotContains(t, holdings, "AAA")
	assert.Contains(t, holdings, "BBB")
}

func TestReconstructHoldings_OversellIsClamped(t *testing.T) {
	oversell := tx(day(1, 10), domain.TypeSellRebalance, "AAA", 8, 80)
	txs := []domain.Transaction{
		credit(day(1, 2), 1000),
		tx(day(1, 3), domain.TypeBuy, "AAA", 5, 50),
		oversell,
	}

	holdings, err := ReconstructHoldings(txs)
	assert.NotContains(t, holdings, "AAA")

	var inc *domain.InconsistencyError
	require.True(t, errors.As(err, &inc))
	require.Len(t, inc.Inconsistencies, 1)
	assert.True(t, inc.Involves(oversell.ID))
	assert.Equal(t, 5.0, inc.Inconsistencies[0].Held)
	assert.Equal(t, 8.0, inc.Inconsistencies[0].Sold)

	// Only the proceeds for the 5 shares actually held are recognised
	l := Replay(txs)
	assert.InDelta(t, 0.0, l.positions["AAA"].Quantity, 1e-12)
	assert.InDelta(t, 0.0, l.positions["AAA"].RealizedGain, 1e-9)
}

func TestReconstructHoldings_IgnoresUnsettled(t *testing.T) {
	pending := tx(day(1, 3), domain.TypeBuy, "AAA", 10, 100)
	pending.Status = domain.StatusPending
	rejected := tx(day(1, 3), domain.TypeBuy, "BBB", 10, 100)
	rejected.Status = domain.StatusRejected
	executed := tx(day(1, 4), domain.TypeBuy, "CCC", 1, 10)
	executed.Status = domain.StatusExecuted

	holdings, err := ReconstructHoldings([]domain.Transaction{pending, rejected, executed})
	require.NoError(t, err)
	assert.Equal(t, []string{"CCC"}, holdings.Tickers())
}

func TestReconstructHoldings_SameDayOrderIndependent(t *testing.T) {
	base := []domain.Transaction{
		credit(day(1, 2), 5000),
		tx(day(1, 5), domain.TypeBuy, "AAA", 10, 100),
		tx(day(1, 5), domain.TypeBuy, "AAA", 10, 200),
		tx(day(1, 5), domain.TypeSellRebalance, "AAA", 5, 125),
		tx(day(1, 5), domain.TypeDividend, "AAA", 0, 12),
		tx(day(1, 5), domain.TypeBuy, "BBB", 3, 90),
		tx(day(1, 5), domain.TypeCashDebit, "", 0, 50),
	}
	expected := Replay(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]domain.Transaction, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Replay(shuffled)
		assert.Equal(t, expected.Holdings(), got.Holdings())
		assert.InDelta(t, expected.Cash(), got.Cash(), 1e-9)
		assert.Equal(t, expected.AttributedDividends(), got.AttributedDividends())
	}
}

func TestCashBalance(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 1), 1000),
		tx(day(1, 1), domain.TypeMonthlyContribution, "", 0, 500),
		tx(day(1, 2), domain.TypeBuy, "AAA", 10, 300),
		tx(day(1, 3), domain.TypeBuyRebalance, "BBB", 1, 100),
		tx(day(1, 4), domain.TypeSellRebalance, "AAA", 2, 70),
		tx(day(1, 5), domain.TypeSellWithdrawal, "AAA", 1, 35),
		tx(day(1, 6), domain.TypeDividend, "AAA", 0, 15),
		tx(day(1, 7), domain.TypeCashDebit, "", 0, 200),
	}

	assert.InDelta(t, 1000+500-300-100+70+35+15-200, CashBalance(txs), 1e-9)
	assert.InDelta(t, CashBalance(txs), Replay(txs).Cash(), 1e-9)
}

func TestComputeCashTotals(t *testing.T) {
	t.Run("sales are not withdrawals", func(t *testing.T) {
		txs := []domain.Transaction{
			credit(day(1, 1), 1000),
			tx(day(1, 2), domain.TypeBuy, "AAA", 10, 500),
			tx(day(1, 3), domain.TypeSellWithdrawal, "AAA", 10, 600),
			tx(day(1, 4), domain.TypeCashDebit, "", 0, 100),
			tx(day(1, 5), domain.TypeDividend, "BBB", 0, 7),
		}
		totals := ComputeCashTotals(txs)
		assert.Equal(t, 1000.0, totals.Invested)
		assert.Equal(t, 100.0, totals.Withdrawn)
		assert.Equal(t, 7.0, totals.Dividends)
	})

	t.Run("falls back to buy amounts without credits", func(t *testing.T) {
		txs := []domain.Transaction{
			tx(day(1, 2), domain.TypeBuy, "AAA", 10, 500),
			tx(day(1, 3), domain.TypeBuy, "BBB", 10, 250),
			tx(day(1, 4), domain.TypeBuyRebalance, "BBB", 1, 25),
		}
		assert.Equal(t, 750.0, ComputeCashTotals(txs).Invested)
	})
}

func TestAttributedDividends_PartialSale(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 1), 10000),
		tx(day(1, 2), domain.TypeBuy, "AAA", 100, 5000),
		tx(day(2, 15), domain.TypeDividend, "AAA", 0, 1000),
		tx(day(3, 1), domain.TypeSellRebalance, "AAA", 80, 4000),
	}

	l := Replay(txs)
	assert.InDelta(t, 200.0, l.AttributedDividends()["AAA"], 1e-9)
	assert.InDelta(t, 1000.0, l.LifetimeDividends()["AAA"], 1e-9)
}

func TestAttributedDividends_BuysAfterDividendDoNotInflate(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 1), 10000),
		tx(day(1, 2), domain.TypeBuy, "AAA", 10, 100),
		tx(day(2, 1), domain.TypeDividend, "AAA", 0, 50),
		tx(day(3, 1), domain.TypeBuy, "AAA", 90, 900),
	}

	assert.InDelta(t, 50.0, Replay(txs).AttributedDividends()["AAA"], 1e-9)
}

func TestClosedPositions(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 1), 10000),
		tx(day(1, 2), domain.TypeBuy, "AAA", 100, 1000),
		tx(day(2, 1), domain.TypeDividend, "AAA", 0, 40),
		tx(day(3, 1), domain.TypeSellRebalance, "AAA", 50, 600),
		tx(day(4, 1), domain.TypeSellWithdrawal, "AAA", 50, 700),
		// Record-date obligation paid after closing
		tx(day(4, 20), domain.TypeDividend, "AAA", 0, 10),
		tx(day(1, 2), domain.TypeBuy, "BBB", 10, 100),
	}

	closed := ClosedPositions(txs)
	require.Len(t, closed, 1)

	cp := closed[0]
	assert.Equal(t, "AAA", cp.Ticker)
	assert.Equal(t, day(1, 2), cp.OpenedAt)
	assert.Equal(t, day(4, 1), cp.ClosedAt)
	assert.InDelta(t, 1000.0, cp.TotalBought, 1e-9)
	assert.InDelta(t, 1300.0, cp.TotalProceeds, 1e-9)
	assert.InDelta(t, 300.0, cp.RealizedReturn, 1e-9)
	assert.InDelta(t, 0.30, cp.RealizedReturnPct, 1e-9)
	assert.InDelta(t, 50.0, cp.Dividends, 1e-9)
	assert.InDelta(t, 350.0, cp.TotalReturn, 1e-9)
}

func TestQuantityAsOf(t *testing.T) {
	exDate := day(3, 10)
	txs := []domain.Transaction{
		credit(day(1, 1), 10000),
		tx(day(3, 1), domain.TypeBuy, "AAA", 10, 100),
		tx(exDate, domain.TypeBuyRebalance, "AAA", 5, 50),
		tx(day(3, 12), domain.TypeBuy, "AAA", 7, 70),
	}

	assert.Equal(t, 10.0, QuantityAsOf(txs, "AAA", exDate))
	assert.Equal(t, 0.0, QuantityAsOf(txs, "AAA", day(3, 1)))
	assert.Equal(t, 0.0, QuantityAsOf(txs, "BBB", exDate))
}

func TestThreshold_NeedsRebalancing(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		target   float64
		expected bool
	}{
		{"on target", 0.50, 0.50, false},
		{"within both limits", 0.53, 0.50, false},
		{"absolute breach", 0.56, 0.50, true},
		{"relative breach only", 0.125, 0.10, true},
		{"example 30 vs 20", 0.30, 0.20, true},
		{"zero target with position", 0.01, 0, true},
		{"zero target without position", 0, 0, false},
		{"underweight", 0.10, 0.25, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultThreshold.NeedsRebalancing(tt.actual, tt.target))
		})
	}
}

func TestBuildHoldings(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 1), 10000),
		tx(day(1, 2), domain.TypeBuy, "AAA", 10, 1000),
		tx(day(1, 2), domain.TypeBuy, "BBB", 10, 1000),
		tx(day(2, 1), domain.TypeDividend, "AAA", 0, 30),
	}

	prices := map[string]float64{"AAA": 120, "BBB": 80}
	targets := map[string]float64{"AAA": 0.5, "BBB": 0.3, "CCC": 0.2}

	holdings := Replay(txs).BuildHoldings(prices, targets, DefaultThreshold)
	require.Len(t, holdings, 3)

	aaa, bbb, ccc := holdings[0], holdings[1], holdings[2]
	assert.Equal(t, "AAA", aaa.Ticker)
	assert.InDelta(t, 1200.0, aaa.CurrentValue, 1e-9)
	assert.InDelta(t, 200.0, aaa.UnrealizedReturn, 1e-9)
	assert.InDelta(t, 0.2, aaa.UnrealizedReturnPct, 1e-9)
	assert.InDelta(t, 30.0, aaa.Dividends, 1e-9)
	assert.InDelta(t, 0.23, aaa.DividendAdjustedReturnPct, 1e-9)
	assert.InDelta(t, 0.6, aaa.ActualAllocation, 1e-9)
	assert.True(t, aaa.NeedsRebalancing)

	assert.InDelta(t, 0.4, bbb.ActualAllocation, 1e-9)
	assert.True(t, bbb.NeedsRebalancing)

	assert.Equal(t, "CCC", ccc.Ticker)
	assert.Equal(t, 0.0, ccc.Quantity)
	assert.True(t, ccc.MissingPrice)
	assert.True(t, ccc.NeedsRebalancing)
}

func TestRunningBalances(t *testing.T) {
	c := credit(day(1, 1), 1000)
	sell := tx(day(1, 5), domain.TypeSellRebalance, "AAA", 1, 100)
	buy := tx(day(1, 5), domain.TypeBuyRebalance, "BBB", 1, 150)
	first := tx(day(1, 2), domain.TypeBuy, "AAA", 5, 500)

	balances := RunningBalances([]domain.Transaction{buy, sell, first, c})
	require.Len(t, balances, 4)

	assert.Equal(t, c.ID, balances[0].TransactionID)
	assert.Equal(t, 1000.0, balances[0].After)
	assert.Equal(t, first.ID, balances[1].TransactionID)
	// Same-day sale is listed before the purchase it funds
	assert.Equal(t, sell.ID, balances[2].TransactionID)
	assert.Equal(t, 500.0, balances[2].Before)
	assert.Equal(t, 600.0, balances[2].After)
	assert.Equal(t, 450.0, balances[3].After)
}

func TestMinDayEndBalance(t *testing.T) {
	txs := []domain.Transaction{
		credit(day(1, 1), 100),
		tx(day(1, 2), domain.TypeBuy, "AAA", 1, 300),
		credit(day(1, 3), 500),
	}

	minimum, final := MinDayEndBalance(txs)
	assert.Equal(t, -200.0, minimum)
	assert.Equal(t, 300.0, final)
	assert.True(t, IsNegative(minimum))

	minimum, final = MinDayEndBalance(nil)
	assert.Equal(t, 0.0, minimum)
	assert.Equal(t, 0.0, final)
}
