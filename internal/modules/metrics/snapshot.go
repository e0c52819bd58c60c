// Package metrics computes, caches and serves portfolio performance snapshots.
package metrics

import (
	"time"

	"github.com/aristath/carteira/internal/modules/accounting"
)

// OtherBucket collects holdings without sector or industry metadata
const OtherBucket = "Outros"

// EvolutionPoint is the portfolio state at one month-end
type EvolutionPoint struct {
	Date               time.Time `json:"date"`
	PortfolioValue     float64   `json:"portfolio_value"` // Holdings plus cash
	CashBalance        float64   `json:"cash_balance"`
	CumulativeInvested float64   `json:"cumulative_invested"`
}

// MonthlyReturn is the change between two consecutive evolution points
type MonthlyReturn struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
}

// AllocationBucket is one sector or industry share of the holdings value
type AllocationBucket struct {
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

// Snapshot is the persisted metrics row of a portfolio. Pointer fields are
// nil when undefined (no investment, short history, flat series).
type Snapshot struct {
	ComputedAt         time.Time            `json:"computed_at"`
	TotalReturn        *float64             `json:"total_return"`
	AnnualizedReturn   *float64             `json:"annualized_return"`
	Volatility         *float64             `json:"volatility"`
	SharpeRatio        *float64             `json:"sharpe_ratio"`
	MaxDrawdown        *float64             `json:"max_drawdown"`
	PortfolioID        string               `json:"portfolio_id"`
	Holdings           []accounting.Holding `json:"holdings"`
	MonthlyReturns     []MonthlyReturn      `json:"monthly_returns"`
	Evolution          []EvolutionPoint     `json:"evolution"`
	SectorAllocation   []AllocationBucket   `json:"sector_allocation"`
	IndustryAllocation []AllocationBucket   `json:"industry_allocation"`
	DataGaps           []string             `json:"data_gaps"` // Held tickers valued at 0 for lack of a price
	CurrentValue       float64              `json:"current_value"`
	CashBalance        float64              `json:"cash_balance"`
	TotalInvested      float64              `json:"total_invested"`
	TotalWithdrawn     float64              `json:"total_withdrawn"`
	TotalDividends     float64              `json:"total_dividends"`
	IsStale            bool                 `json:"is_stale"`
}
