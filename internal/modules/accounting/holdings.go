package accounting

import (
	"time"

	"github.com/aristath/carteira/internal/domain"
)

// Holdings maps ticker to an open position
type Holdings map[string]Position

// Tickers returns the held tickers
func (h Holdings) Tickers() []string {
	out := make([]string, 0, len(h))
	for ticker := range h {
		out = append(out, ticker)
	}
	return out
}

// ReconstructHoldings replays the settled rows of txs and returns open
// positions with their average-cost basis. Holdings are always returned;
// when a sale exceeded the shares held the position is clamped at zero and
// the error is a *domain.InconsistencyError describing every such sale.
func ReconstructHoldings(txs []domain.Transaction) (Holdings, error) {
	l := Replay(txs)
	return l.Holdings(), l.Err()
}

// QuantityAsOf returns the settled quantity of ticker held at the end of
// the day before date. A purchase on date itself does not count.
func QuantityAsOf(txs []domain.Transaction, ticker string, date time.Time) float64 {
	l := NewLedger()
	for _, tx := range SortForReplay(Settled(txs)) {
		if !tx.Date.Before(date) {
			break
		}
		if tx.Ticker == ticker {
			l.Apply(tx)
		}
	}
	if p, ok := l.positions[ticker]; ok {
		return p.Quantity
	}
	return 0
}
