// Package suggestions plans the next pending transactions of a portfolio:
// contributions, threshold-triggered rebalancing and dividend credits.
package suggestions

import (
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/modules/accounting"
)

// Action is the outcome of a per-ticker rebalance evaluation
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// SuggestedTransaction is a proposed ledger row with its audit reason and
// the running cash balance around it
type SuggestedTransaction struct {
	Date              time.Time              `json:"date"`
	Type              domain.TransactionType `json:"type"`
	Ticker            string                 `json:"ticker,omitempty"`
	Reason            string                 `json:"reason"`
	Quantity          float64                `json:"quantity,omitempty"`
	Price             float64                `json:"price,omitempty"`
	Amount            float64                `json:"amount"`
	CashBalanceBefore float64                `json:"cash_balance_before"`
	CashBalanceAfter  float64                `json:"cash_balance_after"`
}

// Transaction converts s into a PENDING auto-suggested row of portfolioID
func (s SuggestedTransaction) Transaction(portfolioID string) domain.Transaction {
	return domain.Transaction{
		PortfolioID:     portfolioID,
		Date:            s.Date,
		Type:            s.Type,
		Ticker:          s.Ticker,
		Quantity:        s.Quantity,
		Price:           s.Price,
		Amount:          s.Amount,
		Status:          domain.StatusPending,
		IsAutoSuggested: true,
		Notes:           s.Reason,
	}
}

// key identifies a suggestion for deduplication
func (s SuggestedTransaction) key() dedupKey {
	return dedupKey{date: s.Date.Unix(), typ: s.Type, ticker: s.Ticker}
}

type dedupKey struct {
	date   int64
	typ    domain.TransactionType
	ticker string
}

// RebalanceDecision is the typed audit record of one per-ticker evaluation
type RebalanceDecision struct {
	DecidedAt        time.Time `json:"decided_at"`
	Profitability    *float64  `json:"profitability"` // Unrealized return fraction, nil when not held
	ID               string    `json:"id"`
	PortfolioID      string    `json:"portfolio_id"`
	Ticker           string    `json:"ticker"`
	Action           Action    `json:"action"`
	Reason           string    `json:"reason"`
	ActualAllocation float64   `json:"actual_allocation"`
	TargetAllocation float64   `json:"target_allocation"`
	Deviation        float64   `json:"deviation"` // Actual minus target
	Quantity         float64   `json:"quantity"`
	NeedsRebalancing bool      `json:"needs_rebalancing"`
}

// PlanInput is everything Plan needs. It is assembled by Engine from
// concurrent reads.
type PlanInput struct {
	Now              time.Time
	LastContribution *time.Time // Latest settled CASH_CREDIT or MONTHLY_CONTRIBUTION
	Portfolio        domain.Portfolio
	Settled          []domain.Transaction
	Existing         []domain.Transaction // PENDING and REJECTED rows
	Targets          map[string]float64
	Prices           map[string]float64
	Dividends        map[string][]domain.DividendEvent
	Threshold        accounting.Threshold
}

// Result is the outcome of one generation run
type Result struct {
	Suggestions []domain.Transaction `json:"suggestions"` // Rows created by this run
	Pending     []domain.Transaction `json:"pending"`     // All auto-suggested PENDING rows afterwards
	Decisions   []RebalanceDecision  `json:"decisions"`
}
