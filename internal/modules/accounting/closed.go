package accounting

import (
	"sort"
	"time"

	"github.com/aristath/carteira/internal/domain"
)

// ClosedPosition is a ticker bought and subsequently fully sold
type ClosedPosition struct {
	OpenedAt          time.Time `json:"opened_at"`
	ClosedAt          time.Time `json:"closed_at"`
	Ticker            string    `json:"ticker"`
	TotalBought       float64   `json:"total_bought"`
	TotalProceeds     float64   `json:"total_proceeds"`
	RealizedReturn    float64   `json:"realized_return"`
	RealizedReturnPct float64   `json:"realized_return_pct"`
	Dividends         float64   `json:"dividends"` // Includes dividends paid after closing
	TotalReturn       float64   `json:"total_return"`
	TotalReturnPct    float64   `json:"total_return_pct"`
}

// ClosedPositions reports positions whose quantity returned to zero
func (l *Ledger) ClosedPositions() []ClosedPosition {
	var out []ClosedPosition
	for _, p := range l.positions {
		if p.IsOpen() || p.BoughtQty <= quantityEpsilon || p.SoldQty <= quantityEpsilon {
			continue
		}

		cp := ClosedPosition{
			OpenedAt:       p.OpenedAt,
			ClosedAt:       p.ClosedAt,
			Ticker:         p.Ticker,
			TotalBought:    p.TotalBought,
			TotalProceeds:  p.TotalProceeds,
			RealizedReturn: p.RealizedGain,
			Dividends:      p.Dividends,
			TotalReturn:    p.RealizedGain + p.Dividends,
		}
		if p.TotalBought > 0 {
			cp.RealizedReturnPct = cp.RealizedReturn / p.TotalBought
			cp.TotalReturnPct = cp.TotalReturn / p.TotalBought
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClosedAt.Equal(out[j].ClosedAt) {
			return out[i].ClosedAt.After(out[j].ClosedAt)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// ClosedPositions replays txs and returns the closed positions
func ClosedPositions(txs []domain.Transaction) []ClosedPosition {
	return Replay(txs).ClosedPositions()
}
