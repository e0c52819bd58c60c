package suggestions

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/utils"
)

// shareEpsilon absorbs float noise before flooring to whole shares
const shareEpsilon = 1e-9

// Plan proposes the next transactions of a portfolio. It performs no I/O:
// the due-date check, the buy or rebalance pass, dividend credits and
// deduplication against in.Existing all run on the given snapshot.
// Decisions are only produced when a contribution is due and no earlier
// run already proposed it.
func Plan(in PlanInput) ([]SuggestedTransaction, []RebalanceDecision) {
	today := utils.Day(in.Now)
	l := accounting.Replay(in.Settled)
	cash := l.Cash()

	planned := make([]SuggestedTransaction, 0)
	decisions := make([]RebalanceDecision, 0)

	periods := DuePeriods(in.LastContribution, in.Portfolio.RebalanceFrequency, today)
	if periods > 0 && !contributionProposed(in.Existing, in.LastContribution, in.Portfolio.RebalanceFrequency, today) {
		contribution := round2(float64(periods) * in.Portfolio.MonthlyContribution)
		if contribution > 0 {
			planned = append(planned, SuggestedTransaction{
				Date:   today,
				Type:   domain.TypeCashCredit,
				Amount: contribution,
				Reason: contributionReason(periods, in.Portfolio.RebalanceFrequency),
			})
		}

		trades, decided := planTrades(l, in, cash+contribution, today)
		planned = append(planned, trades...)
		decisions = decided
	}

	planned = append(planned, planDividends(l, in, today)...)
	planned = deduplicate(planned, in.Existing, in.Settled)

	balance := cash
	for i := range planned {
		planned[i].CashBalanceBefore = round2(balance)
		balance += planned[i].Type.CashSign() * planned[i].Amount
		planned[i].CashBalanceAfter = round2(balance)
	}

	for i := range decisions {
		decisions[i].PortfolioID = in.Portfolio.ID
		decisions[i].DecidedAt = in.Now.UTC()
	}
	return planned, decisions
}

// DuePeriods returns how many contribution periods have fallen due by
// today. A portfolio that never received a contribution has one due.
func DuePeriods(last *time.Time, frequency domain.RebalanceFrequency, today time.Time) int {
	if last == nil {
		return 1
	}
	step := frequency.Months()
	periods := 0
	for !utils.AddMonths(*last, step*(periods+1)).After(today) {
		periods++
	}
	return periods
}

// contributionProposed reports whether an open auto-suggested contribution
// or trade already answers the due period. Rows count when dated on or after
// both the period's due date and the start of the current month; older
// PENDING rows are removed by the engine before planning.
func contributionProposed(existing []domain.Transaction, last *time.Time, frequency domain.RebalanceFrequency, today time.Time) bool {
	since := utils.MonthStart(today)
	if last != nil {
		if due := utils.AddMonths(*last, frequency.Months()); due.After(since) {
			since = due
		}
	}

	for _, tx := range existing {
		if !tx.IsAutoSuggested || utils.Day(tx.Date).Before(since) {
			continue
		}
		if tx.Status != domain.StatusPending && tx.Status != domain.StatusRejected {
			continue
		}
		if tx.Type.IsContribution() || tx.Type.IsBuy() || tx.Type == domain.TypeSellRebalance {
			return true
		}
	}
	return false
}

// planTrades chooses between proportional buys and a rebalancing pass.
// Allocations are measured on the holdings value; budget is the cash
// available once the contribution lands.
func planTrades(l *accounting.Ledger, in PlanInput, budget float64, today time.Time) ([]SuggestedTransaction, []RebalanceDecision) {
	if len(in.Targets) == 0 {
		return nil, make([]RebalanceDecision, 0)
	}

	holdings := l.BuildHoldings(in.Prices, in.Targets, in.Threshold)
	holdingsValue := 0.0
	for _, h := range holdings {
		holdingsValue += h.CurrentValue
	}

	rebalance := false
	if holdingsValue > 0 {
		for _, h := range holdings {
			if h.NeedsRebalancing && !h.MissingPrice {
				rebalance = true
				break
			}
		}
	}

	decisions := make(map[string]*RebalanceDecision, len(holdings))
	for _, h := range holdings {
		d := &RebalanceDecision{
			Ticker:           h.Ticker,
			Action:           ActionHold,
			ActualAllocation: h.ActualAllocation,
			TargetAllocation: h.TargetAllocation,
			Deviation:        h.ActualAllocation - h.TargetAllocation,
			NeedsRebalancing: h.NeedsRebalancing,
			Reason:           "within tolerance",
		}
		if h.Quantity > 0 && h.TotalInvested > 0 {
			profit := h.UnrealizedReturnPct
			d.Profitability = &profit
		}
		if h.MissingPrice {
			d.Reason = "no price available"
		}
		decisions[h.Ticker] = d
	}

	trades := make([]SuggestedTransaction, 0)
	sold := make(map[string]bool)
	buyType := domain.TypeBuy

	if rebalance {
		buyType = domain.TypeBuyRebalance
		for _, s := range planSells(holdings, holdingsValue, decisions) {
			sold[s.Ticker] = true
			budget += s.Amount
			s.Date = today
			trades = append(trades, s)
		}
	}

	total := holdingsValue + budget
	for _, s := range trades {
		total -= s.Amount
	}
	trades = append(trades, planBuys(holdings, total, budget, buyType, sold, decisions, today)...)

	out := make([]RebalanceDecision, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return trades, out
}

// planSells sells overallocated positions down to target, most profitable
// first. Positions at a loss are only sold when no profitable overallocated
// position exists. Positions with a zero target are exited in full.
func planSells(holdings []accounting.Holding, holdingsValue float64, decisions map[string]*RebalanceDecision) []SuggestedTransaction {
	var exits, profitable, losing []accounting.Holding
	for _, h := range holdings {
		if h.Quantity <= 0 || h.MissingPrice || !h.NeedsRebalancing || h.ActualAllocation <= h.TargetAllocation {
			continue
		}
		switch {
		case h.TargetAllocation <= 0:
			exits = append(exits, h)
		case h.UnrealizedReturnPct >= 0:
			profitable = append(profitable, h)
		default:
			losing = append(losing, h)
		}
	}

	byProfit := func(hs []accounting.Holding) {
		sort.Slice(hs, func(i, j int) bool {
			if hs[i].UnrealizedReturnPct != hs[j].UnrealizedReturnPct {
				return hs[i].UnrealizedReturnPct > hs[j].UnrealizedReturnPct
			}
			return hs[i].Ticker < hs[j].Ticker
		})
	}
	byProfit(exits)
	byProfit(profitable)
	byProfit(losing)

	candidates := profitable
	if len(profitable) > 0 {
		for _, h := range losing {
			decisions[h.Ticker].Reason = "overallocated at a loss; profitable positions sold instead"
		}
	} else {
		candidates = losing
	}

	out := make([]SuggestedTransaction, 0)
	sell := func(h accounting.Holding, qty float64, reason string) {
		if qty < 1 {
			decisions[h.Ticker].Reason = "overallocation is less than one share"
			return
		}
		out = append(out, SuggestedTransaction{
			Type:     domain.TypeSellRebalance,
			Ticker:   h.Ticker,
			Quantity: qty,
			Price:    h.CurrentPrice,
			Amount:   round2(qty * h.CurrentPrice),
			Reason:   reason,
		})
		d := decisions[h.Ticker]
		d.Action = ActionSell
		d.Quantity = qty
		d.Reason = reason
	}

	for _, h := range exits {
		sell(h, h.Quantity, "no longer a target; exiting position")
	}
	for _, h := range candidates {
		excess := h.CurrentValue - h.TargetAllocation*holdingsValue
		qty := math.Min(wholeShares(excess, h.CurrentPrice), math.Floor(h.Quantity))
		sell(h, qty, fmt.Sprintf("allocation %.1f%% above target %.1f%% (return %.1f%%)",
			h.ActualAllocation*100, h.TargetAllocation*100, h.UnrealizedReturnPct*100))
	}
	return out
}

// planBuys spends budget on the largest deficits against target×total,
// flooring to whole shares. Tickers sold in the same pass are skipped.
func planBuys(
	holdings []accounting.Holding,
	total, budget float64,
	buyType domain.TransactionType,
	sold map[string]bool,
	decisions map[string]*RebalanceDecision,
	today time.Time,
) []SuggestedTransaction {
	type deficit struct {
		holding accounting.Holding
		amount  float64
	}

	var deficits []deficit
	for _, h := range holdings {
		if h.TargetAllocation <= 0 || h.CurrentPrice <= 0 || sold[h.Ticker] {
			continue
		}
		if gap := h.TargetAllocation*total - h.CurrentValue; gap > 0 {
			deficits = append(deficits, deficit{holding: h, amount: gap})
		}
	}
	sort.Slice(deficits, func(i, j int) bool {
		if deficits[i].amount != deficits[j].amount {
			return deficits[i].amount > deficits[j].amount
		}
		return deficits[i].holding.Ticker < deficits[j].holding.Ticker
	})

	out := make([]SuggestedTransaction, 0, len(deficits))
	for _, d := range deficits {
		h := d.holding
		qty := wholeShares(math.Min(d.amount, budget), h.CurrentPrice)
		if qty < 1 {
			decisions[h.Ticker].Reason = "available cash is less than one share"
			continue
		}

		amount := round2(qty * h.CurrentPrice)
		budget -= amount
		reason := fmt.Sprintf("allocation %.1f%% below target %.1f%%", h.ActualAllocation*100, h.TargetAllocation*100)
		if buyType == domain.TypeBuy {
			reason = fmt.Sprintf("contribution toward %.1f%% target", h.TargetAllocation*100)
		}
		out = append(out, SuggestedTransaction{
			Date:     today,
			Type:     buyType,
			Ticker:   h.Ticker,
			Quantity: qty,
			Price:    h.CurrentPrice,
			Amount:   amount,
			Reason:   reason,
		})

		dec := decisions[h.Ticker]
		dec.Action = ActionBuy
		dec.Quantity = qty
		dec.Reason = reason
	}
	return out
}

// planDividends credits dividends paid this month on shares held before the
// ex-date. Rows are dated at the payment date.
func planDividends(l *accounting.Ledger, in PlanInput, today time.Time) []SuggestedTransaction {
	held := l.Holdings().Tickers()
	sort.Strings(held)

	out := make([]SuggestedTransaction, 0)
	for _, ticker := range held {
		for _, event := range in.Dividends[ticker] {
			exDate := utils.Day(event.ExDate)
			paymentDate := utils.Day(event.PaymentDate)
			if event.AmountPerShare <= 0 || exDate.After(today) || !utils.SameMonth(paymentDate, today) {
				continue
			}

			qty := accounting.QuantityAsOf(in.Settled, ticker, exDate)
			amount := round2(qty * event.AmountPerShare)
			if qty <= 0 || amount <= 0 {
				continue
			}
			out = append(out, SuggestedTransaction{
				Date:     paymentDate,
				Type:     domain.TypeDividend,
				Ticker:   ticker,
				Quantity: qty,
				Price:    event.AmountPerShare,
				Amount:   amount,
				Reason: fmt.Sprintf("%g per share on %g shares held before ex-date %s",
					event.AmountPerShare, qty, exDate.Format(utils.DateLayout)),
			})
		}
	}
	return out
}

// deduplicate drops suggestions matching a PENDING or REJECTED row by
// (date, type, ticker) and dividends already settled for (date, ticker)
func deduplicate(planned []SuggestedTransaction, existing, settled []domain.Transaction) []SuggestedTransaction {
	seen := make(map[dedupKey]bool, len(existing))
	for _, tx := range existing {
		if tx.Status == domain.StatusPending || tx.Status == domain.StatusRejected {
			seen[transactionKey(tx)] = true
		}
	}
	for _, tx := range settled {
		if tx.Type == domain.TypeDividend && tx.Status.IsSettled() {
			seen[transactionKey(tx)] = true
		}
	}

	out := make([]SuggestedTransaction, 0, len(planned))
	for _, s := range planned {
		k := s.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func transactionKey(tx domain.Transaction) dedupKey {
	return dedupKey{date: utils.Day(tx.Date).Unix(), typ: tx.Type, ticker: tx.Ticker}
}

func contributionReason(periods int, frequency domain.RebalanceFrequency) string {
	if periods == 1 {
		return fmt.Sprintf("%s contribution due", frequency)
	}
	return fmt.Sprintf("%d overdue %s contributions", periods, frequency)
}

func wholeShares(amount, price float64) float64 {
	if price <= 0 || amount <= 0 {
		return 0
	}
	return math.Floor(amount/price + shareEpsilon)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
