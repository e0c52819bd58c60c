package suggestions

import (
	"testing"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/modules/accounting"
	testingpkg "github.com/aristath/carteira/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var planNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func basePlanInput() PlanInput {
	return PlanInput{
		Now: planNow,
		Portfolio: domain.Portfolio{
			ID:                  "p1",
			RebalanceFrequency:  domain.FrequencyMonthly,
			MonthlyContribution: 1000,
		},
		Threshold: accounting.DefaultThreshold,
		Prices:    map[string]float64{},
		Dividends: map[string][]domain.DividendEvent{},
	}
}

func buy(date time.Time, typ domain.TransactionType, ticker string, qty, price float64) domain.Transaction {
	return testingpkg.NewTransaction("p1", date, typ, ticker, qty, qty*price)
}

func findDecision(t *testing.T, decisions []RebalanceDecision, ticker string) RebalanceDecision {
	t.Helper()
	for _, d := range decisions {
		if d.Ticker == ticker {
			return d
		}
	}
	t.Fatalf("no decision for %s", ticker)
	return RebalanceDecision{}
}

func TestDuePeriods(t *testing.T) {
	today := testingpkg.Date(2024, 6, 15)
	date := func(y int, m time.Month, d int) *time.Time {
		v := testingpkg.Date(y, m, d)
		return &v
	}

	tests := []struct {
		name      string
		last      *time.Time
		frequency domain.RebalanceFrequency
		want      int
	}{
		{"never contributed", nil, domain.FrequencyMonthly, 1},
		{"contributed this month", date(2024, 6, 1), domain.FrequencyMonthly, 0},
		{"one month ago", date(2024, 5, 10), domain.FrequencyMonthly, 1},
		{"due exactly today", date(2024, 5, 15), domain.FrequencyMonthly, 1},
		{"four periods overdue", date(2024, 2, 10), domain.FrequencyMonthly, 4},
		{"quarterly due today", date(2024, 3, 15), domain.FrequencyQuarterly, 1},
		{"quarterly not yet", date(2024, 4, 1), domain.FrequencyQuarterly, 0},
		{"yearly not yet", date(2023, 7, 1), domain.FrequencyYearly, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DuePeriods(tt.last, tt.frequency, today))
		})
	}
}

func TestPlan_FirstContributionBuysProportionally(t *testing.T) {
	in := basePlanInput()
	in.Targets = map[string]float64{"AAA": 0.5, "BBB": 0.5}
	in.Prices = map[string]float64{"AAA": 30, "BBB": 45}

	planned, decisions := Plan(in)
	require.Len(t, planned, 3)

	assert.Equal(t, domain.TypeCashCredit, planned[0].Type)
	assert.Equal(t, 1000.0, planned[0].Amount)
	assert.Equal(t, testingpkg.Date(2024, 6, 15), planned[0].Date)

	assert.Equal(t, domain.TypeBuy, planned[1].Type)
	assert.Equal(t, "AAA", planned[1].Ticker)
	assert.Equal(t, 16.0, planned[1].Quantity)
	assert.Equal(t, 480.0, planned[1].Amount)

	assert.Equal(t, domain.TypeBuy, planned[2].Type)
	assert.Equal(t, "BBB", planned[2].Ticker)
	assert.Equal(t, 11.0, planned[2].Quantity)
	assert.Equal(t, 495.0, planned[2].Amount)

	assert.Equal(t, 0.0, planned[0].CashBalanceBefore)
	assert.Equal(t, 1000.0, planned[0].CashBalanceAfter)
	assert.Equal(t, 25.0, planned[2].CashBalanceAfter, "remainder stays in cash")

	require.Len(t, decisions, 2)
	assert.Equal(t, ActionBuy, decisions[0].Action)
	assert.Equal(t, "p1", decisions[0].PortfolioID)
	assert.Equal(t, planNow, decisions[0].DecidedAt)
}

func TestPlan_Idempotent(t *testing.T) {
	in := basePlanInput()
	in.Targets = map[string]float64{"AAA": 0.5, "BBB": 0.5}
	in.Prices = map[string]float64{"AAA": 30, "BBB": 45}

	first, _ := Plan(in)
	require.NotEmpty(t, first)

	t.Run("pending rows suppress duplicates", func(t *testing.T) {
		for _, s := range first {
			in.Existing = append(in.Existing, s.Transaction("p1"))
		}
		again, _ := Plan(in)
		assert.Empty(t, again)
	})

	t.Run("confirmed contribution satisfies the month", func(t *testing.T) {
		confirmed := basePlanInput()
		confirmed.Targets = in.Targets
		confirmed.Prices = in.Prices
		for _, s := range first {
			tx := s.Transaction("p1")
			tx.Status = domain.StatusConfirmed
			confirmed.Settled = append(confirmed.Settled, tx)
		}
		today := testingpkg.Date(2024, 6, 15)
		confirmed.LastContribution = &today

		again, decisions := Plan(confirmed)
		assert.Empty(t, again)
		assert.Empty(t, decisions)
	})
}

func TestPlan_OpenContributionCoversFollowingDays(t *testing.T) {
	in := basePlanInput()
	in.Targets = map[string]float64{"AAA": 0.5, "BBB": 0.5}
	in.Prices = map[string]float64{"AAA": 30, "BBB": 45}

	first, _ := Plan(in)
	require.Len(t, first, 3)

	withStatus := func(status domain.TransactionStatus) []domain.Transaction {
		rows := make([]domain.Transaction, 0, len(first))
		for _, s := range first {
			tx := s.Transaction("p1")
			tx.Status = status
			rows = append(rows, tx)
		}
		return rows
	}

	tests := []struct {
		name   string
		status domain.TransactionStatus
	}{
		{"pending", domain.StatusPending},
		{"rejected", domain.StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := in
			next.Now = planNow.AddDate(0, 0, 1)
			next.Existing = withStatus(tt.status)

			planned, decisions := Plan(next)
			assert.Empty(t, planned)
			assert.Empty(t, decisions)
		})
	}

	t.Run("manual rows do not cover", func(t *testing.T) {
		next := in
		next.Now = planNow.AddDate(0, 0, 1)
		manual := testingpkg.NewTransaction("p1", testingpkg.Date(2024, 6, 15), domain.TypeBuy, "AAA", 1, 30)
		manual.Status = domain.StatusPending
		next.Existing = []domain.Transaction{manual}

		planned, _ := Plan(next)
		require.NotEmpty(t, planned)
		assert.Equal(t, domain.TypeCashCredit, planned[0].Type)
		assert.Equal(t, testingpkg.Date(2024, 6, 16), planned[0].Date)
	})

	t.Run("rejected last month does not cover this month", func(t *testing.T) {
		next := in
		next.Now = time.Date(2024, 7, 16, 12, 0, 0, 0, time.UTC)
		next.Existing = withStatus(domain.StatusRejected)

		planned, decisions := Plan(next)
		require.Len(t, planned, 3)
		assert.Equal(t, testingpkg.Date(2024, 7, 16), planned[0].Date)
		assert.Len(t, decisions, 2)
	})
}

func TestPlan_OverdueContributionsCollapseIntoToday(t *testing.T) {
	in := basePlanInput()
	last := testingpkg.Date(2024, 2, 10)
	in.LastContribution = &last

	planned, _ := Plan(in)
	require.Len(t, planned, 1)
	assert.Equal(t, testingpkg.Date(2024, 6, 15), planned[0].Date)
	assert.Equal(t, 4000.0, planned[0].Amount)
}

func TestPlan_RebalanceSellsOverallocatedAndBuysUnderweight(t *testing.T) {
	in := basePlanInput()
	in.Settled = []domain.Transaction{
		testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 5, 1), 1000),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "AAA", 30, 8),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "BBB", 70, 10),
	}
	last := testingpkg.Date(2024, 5, 1)
	in.LastContribution = &last
	in.Targets = map[string]float64{"AAA": 0.2, "BBB": 0.8}
	in.Prices = map[string]float64{"AAA": 10, "BBB": 10}

	planned, decisions := Plan(in)
	require.Len(t, planned, 3)

	assert.Equal(t, domain.TypeCashCredit, planned[0].Type)

	assert.Equal(t, domain.TypeSellRebalance, planned[1].Type)
	assert.Equal(t, "AAA", planned[1].Ticker)
	assert.Equal(t, 10.0, planned[1].Quantity)
	assert.Equal(t, 100.0, planned[1].Amount)

	assert.Equal(t, domain.TypeBuyRebalance, planned[2].Type)
	assert.Equal(t, "BBB", planned[2].Ticker)
	assert.Equal(t, 94.0, planned[2].Quantity)
	assert.GreaterOrEqual(t, planned[2].CashBalanceAfter, 0.0)

	aaa := findDecision(t, decisions, "AAA")
	assert.Equal(t, ActionSell, aaa.Action)
	assert.True(t, aaa.NeedsRebalancing)
	assert.InDelta(t, 0.1, aaa.Deviation, 1e-9)
	require.NotNil(t, aaa.Profitability)
	assert.InDelta(t, 0.25, *aaa.Profitability, 1e-9)

	bbb := findDecision(t, decisions, "BBB")
	assert.Equal(t, ActionBuy, bbb.Action)
	assert.Equal(t, 94.0, bbb.Quantity)
}

func TestPlan_RebalanceSellsProfitableBeforeLosers(t *testing.T) {
	in := basePlanInput()
	in.Portfolio.MonthlyContribution = 0
	in.Settled = []domain.Transaction{
		testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 5, 1), 1000),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "AAA", 30, 8),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "CCC", 30, 12),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "BBB", 40, 10),
	}
	in.Targets = map[string]float64{"AAA": 0.2, "BBB": 0.6, "CCC": 0.2}
	in.Prices = map[string]float64{"AAA": 10, "BBB": 10, "CCC": 10}

	planned, decisions := Plan(in)
	require.Len(t, planned, 2)
	assert.Equal(t, domain.TypeSellRebalance, planned[0].Type)
	assert.Equal(t, "AAA", planned[0].Ticker)
	assert.Equal(t, domain.TypeBuyRebalance, planned[1].Type)
	assert.Equal(t, "BBB", planned[1].Ticker)
	assert.Equal(t, 10.0, planned[1].Quantity)

	ccc := findDecision(t, decisions, "CCC")
	assert.Equal(t, ActionHold, ccc.Action)
	assert.True(t, ccc.NeedsRebalancing)
	assert.Contains(t, ccc.Reason, "at a loss")
}

func TestPlan_RebalanceFallsBackToLosers(t *testing.T) {
	in := basePlanInput()
	in.Portfolio.MonthlyContribution = 0
	in.Settled = []domain.Transaction{
		testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 5, 1), 1000),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "CCC", 60, 12),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "BBB", 28, 10),
	}
	in.Targets = map[string]float64{"BBB": 0.5, "CCC": 0.5}
	in.Prices = map[string]float64{"BBB": 10, "CCC": 10}

	planned, _ := Plan(in)
	require.NotEmpty(t, planned)
	assert.Equal(t, domain.TypeSellRebalance, planned[0].Type)
	assert.Equal(t, "CCC", planned[0].Ticker)
	assert.Equal(t, 16.0, planned[0].Quantity)
}

func TestPlan_RemovedTargetIsExited(t *testing.T) {
	in := basePlanInput()
	in.Portfolio.MonthlyContribution = 0
	in.Settled = []domain.Transaction{
		testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 5, 1), 1000),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "AAA", 50, 10),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "DDD", 25, 10),
	}
	in.Targets = map[string]float64{"AAA": 1.0}
	in.Prices = map[string]float64{"AAA": 10, "DDD": 12}

	planned, decisions := Plan(in)
	require.NotEmpty(t, planned)
	assert.Equal(t, domain.TypeSellRebalance, planned[0].Type)
	assert.Equal(t, "DDD", planned[0].Ticker)
	assert.Equal(t, 25.0, planned[0].Quantity)
	assert.Equal(t, 300.0, planned[0].Amount)

	ddd := findDecision(t, decisions, "DDD")
	assert.Equal(t, ActionSell, ddd.Action)
	assert.Equal(t, 0.0, ddd.TargetAllocation)
}

func TestPlan_DividendsRequireSharesBeforeExDate(t *testing.T) {
	in := basePlanInput()
	in.Portfolio.MonthlyContribution = 0
	in.Settled = []domain.Transaction{
		testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 5, 1), 2000),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "AAA", 100, 10),
		buy(testingpkg.Date(2024, 6, 5), domain.TypeBuyRebalance, "AAA", 50, 10),
	}
	in.Dividends = map[string][]domain.DividendEvent{
		"AAA": {
			{Ticker: "AAA", ExDate: testingpkg.Date(2024, 6, 5), PaymentDate: testingpkg.Date(2024, 6, 20), AmountPerShare: 0.5},
			{Ticker: "AAA", ExDate: testingpkg.Date(2024, 6, 18), PaymentDate: testingpkg.Date(2024, 6, 28), AmountPerShare: 0.3},
			{Ticker: "AAA", ExDate: testingpkg.Date(2024, 6, 1), PaymentDate: testingpkg.Date(2024, 7, 10), AmountPerShare: 0.2},
			{Ticker: "AAA", ExDate: testingpkg.Date(2024, 4, 1), PaymentDate: testingpkg.Date(2024, 6, 3), AmountPerShare: 1},
		},
	}

	planned, decisions := Plan(in)
	assert.Empty(t, decisions, "no targets configured")
	require.Len(t, planned, 1)
	assert.Equal(t, domain.TypeDividend, planned[0].Type)
	assert.Equal(t, "AAA", planned[0].Ticker)
	assert.Equal(t, testingpkg.Date(2024, 6, 20), planned[0].Date)
	assert.Equal(t, 100.0, planned[0].Quantity, "shares bought on the ex-date do not qualify")
	assert.Equal(t, 50.0, planned[0].Amount)

	t.Run("already credited", func(t *testing.T) {
		paid := testingpkg.NewTransaction("p1", testingpkg.Date(2024, 6, 20), domain.TypeDividend, "AAA", 0, 50)
		in.Settled = append(in.Settled, paid)
		again, _ := Plan(in)
		assert.Empty(t, again)
	})

	t.Run("rejected is not re-suggested", func(t *testing.T) {
		rejected := planned[0].Transaction("p1")
		rejected.Status = domain.StatusRejected
		in.Settled = in.Settled[:3]
		in.Existing = []domain.Transaction{rejected}
		again, _ := Plan(in)
		assert.Empty(t, again)
	})
}

func TestPlan_NoTargetsNoTrades(t *testing.T) {
	in := basePlanInput()
	in.Settled = []domain.Transaction{
		testingpkg.NewCashCredit("p1", testingpkg.Date(2024, 5, 1), 1000),
		buy(testingpkg.Date(2024, 5, 2), domain.TypeBuy, "AAA", 10, 10),
	}
	in.Prices = map[string]float64{"AAA": 10}

	planned, decisions := Plan(in)
	require.Len(t, planned, 1)
	assert.Equal(t, domain.TypeCashCredit, planned[0].Type)
	assert.Equal(t, 900.0, planned[0].CashBalanceBefore)
	assert.Empty(t, decisions)
}

func TestPlan_MissingPriceHolds(t *testing.T) {
	in := basePlanInput()
	in.Targets = map[string]float64{"AAA": 0.5, "BBB": 0.5}
	in.Prices = map[string]float64{"AAA": 100}

	planned, decisions := Plan(in)
	require.Len(t, planned, 2)
	assert.Equal(t, "AAA", planned[1].Ticker)
	assert.Equal(t, 5.0, planned[1].Quantity)

	bbb := findDecision(t, decisions, "BBB")
	assert.Equal(t, ActionHold, bbb.Action)
	assert.Equal(t, "no price available", bbb.Reason)
}
