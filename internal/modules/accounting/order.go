// Package accounting replays a portfolio's transaction ledger into holdings,
// cash and dividend figures. Everything here is pure: no I/O, no clock.
package accounting

import (
	"sort"

	"github.com/aristath/carteira/internal/domain"
)

// quantityEpsilon is the tolerance below which a position counts as closed
const quantityEpsilon = 1e-9

// cashEpsilon absorbs floating point noise in cash sums
const cashEpsilon = 1e-6

// Settled filters txs down to CONFIRMED and EXECUTED rows
func Settled(txs []domain.Transaction) []domain.Transaction {
	settled := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Status.IsSettled() {
			settled = append(settled, tx)
		}
	}
	return settled
}

// holdingsRank orders a day's rows so that purchases pool into the average
// cost before any same-day sale. This makes same-day rows commutative.
func holdingsRank(t domain.TransactionType) int {
	switch {
	case t.IsContribution() || t == domain.TypeDividend:
		return 0
	case t.IsBuy():
		return 1
	case t.IsSell():
		return 2
	default:
		return 3
	}
}

// cashRank orders a day's rows for the running balance timeline:
// inflows, then sales, then purchases, then withdrawals.
func cashRank(t domain.TransactionType) int {
	switch {
	case t.IsContribution() || t == domain.TypeDividend:
		return 0
	case t.IsSell():
		return 1
	case t.IsBuy():
		return 2
	default:
		return 3
	}
}

// SortForReplay returns a copy of txs in canonical replay order:
// date ascending, then kind, then id.
func SortForReplay(txs []domain.Transaction) []domain.Transaction {
	return sortBy(txs, holdingsRank)
}

// SortForCash returns a copy of txs in running-balance order
func SortForCash(txs []domain.Transaction) []domain.Transaction {
	return sortBy(txs, cashRank)
}

func sortBy(txs []domain.Transaction, rank func(domain.TransactionType) int) []domain.Transaction {
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if ra, rb := rank(a.Type), rank(b.Type); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})

	return sorted
}
