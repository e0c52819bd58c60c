package accounting

import (
	"github.com/aristath/carteira/internal/domain"
)

// CashTotals are the capital flows used for return calculations. Sales only
// move value between positions and the cash sub-account, so they are never
// counted as withdrawn.
type CashTotals struct {
	Invested  float64 `json:"invested"`
	Withdrawn float64 `json:"withdrawn"`
	Dividends float64 `json:"dividends"`
}

// CashBalance sums the signed cash effect of every settled row in txs.
// O(n) reads, no writes.
func CashBalance(txs []domain.Transaction) float64 {
	balance := 0.0
	for _, tx := range txs {
		if tx.Status.IsSettled() {
			balance += tx.CashDelta()
		}
	}
	return balance
}

// ComputeCashTotals returns invested, withdrawn and dividend sums for the settled rows
func ComputeCashTotals(txs []domain.Transaction) CashTotals {
	return Replay(txs).Totals()
}

// RunningBalance is the cash before and after one row
type RunningBalance struct {
	TransactionID string
	Before        float64
	After         float64
}

// RunningBalances walks the settled rows in timeline order and returns the
// balance around each one. Used to refresh the cached per-row fields.
func RunningBalances(txs []domain.Transaction) []RunningBalance {
	sorted := SortForCash(Settled(txs))
	out := make([]RunningBalance, 0, len(sorted))

	balance := 0.0
	for _, tx := range sorted {
		before := balance
		balance += tx.CashDelta()
		out = append(out, RunningBalance{TransactionID: tx.ID, Before: before, After: balance})
	}
	return out
}

// MinDayEndBalance returns the lowest end-of-day cash balance across the
// settled ledger and the final balance. An empty ledger returns 0, 0.
func MinDayEndBalance(txs []domain.Transaction) (minimum, final float64) {
	sorted := SortForCash(Settled(txs))

	balance := 0.0
	for i, tx := range sorted {
		balance += tx.CashDelta()
		endOfDay := i == len(sorted)-1 || !sorted[i+1].Date.Equal(tx.Date)
		if endOfDay && balance < minimum {
			minimum = balance
		}
	}
	return minimum, balance
}

// IsNegative reports whether balance is below zero beyond rounding noise
func IsNegative(balance float64) bool {
	return balance < -cashEpsilon
}
