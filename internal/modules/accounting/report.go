package accounting

import (
	"sort"
)

// Holding is the derived per-ticker view shown to the investor
type Holding struct {
	Ticker                    string  `json:"ticker"`
	Quantity                  float64 `json:"quantity"`
	TotalInvested             float64 `json:"total_invested"`
	AveragePrice              float64 `json:"average_price"`
	CurrentPrice              float64 `json:"current_price"`
	CurrentValue              float64 `json:"current_value"`
	UnrealizedReturn          float64 `json:"unrealized_return"`
	UnrealizedReturnPct       float64 `json:"unrealized_return_pct"`
	RealizedReturn            float64 `json:"realized_return"`
	Dividends                 float64 `json:"dividends"`
	DividendAdjustedReturnPct float64 `json:"dividend_adjusted_return_pct"`
	ActualAllocation          float64 `json:"actual_allocation"`
	TargetAllocation          float64 `json:"target_allocation"`
	NeedsRebalancing          bool    `json:"needs_rebalancing"`
	MissingPrice              bool    `json:"missing_price,omitempty"`
}

// BuildHoldings prices the open positions and compares them with targets.
// Target tickers not yet held are included with zero quantity. Allocations
// are fractions of the total holdings value, cash excluded. A ticker absent
// from prices is valued at 0 and flagged MissingPrice.
func (l *Ledger) BuildHoldings(prices map[string]float64, targets map[string]float64, th Threshold) []Holding {
	open := l.Holdings()
	dividends := l.AttributedDividends()

	tickers := make(map[string]bool, len(open)+len(targets))
	for ticker := range open {
		tickers[ticker] = true
	}
	for ticker := range targets {
		tickers[ticker] = true
	}

	out := make([]Holding, 0, len(tickers))
	totalValue := 0.0
	for ticker := range tickers {
		p := open[ticker]
		price, ok := prices[ticker]
		h := Holding{
			Ticker:           ticker,
			Quantity:         p.Quantity,
			TotalInvested:    p.TotalInvested,
			AveragePrice:     p.AverageCost(),
			CurrentPrice:     price,
			CurrentValue:     p.Quantity * price,
			Dividends:        dividends[ticker],
			TargetAllocation: targets[ticker],
			MissingPrice:     !ok || price <= 0,
		}
		if pos, exists := l.positions[ticker]; exists {
			h.RealizedReturn = pos.RealizedGain
		}
		h.UnrealizedReturn = h.CurrentValue - h.TotalInvested
		if h.TotalInvested > 0 {
			h.UnrealizedReturnPct = h.UnrealizedReturn / h.TotalInvested
			h.DividendAdjustedReturnPct = (h.CurrentValue + h.Dividends - h.TotalInvested) / h.TotalInvested
		}
		totalValue += h.CurrentValue
		out = append(out, h)
	}

	for i := range out {
		if totalValue > 0 {
			out[i].ActualAllocation = out[i].CurrentValue / totalValue
		}
		out[i].NeedsRebalancing = th.NeedsRebalancing(out[i].ActualAllocation, out[i].TargetAllocation)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
