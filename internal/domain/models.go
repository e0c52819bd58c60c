// Package domain provides core domain models and types shared across modules.
package domain

import (
	"time"
)

// TransactionType is the kind of ledger event. Amount is always >= 0 and
// the direction of the cash movement is implied by the type.
type TransactionType string

const (
	TypeCashCredit          TransactionType = "CASH_CREDIT"
	TypeCashDebit           TransactionType = "CASH_DEBIT"
	TypeBuy                 TransactionType = "BUY"
	TypeBuyRebalance        TransactionType = "BUY_REBALANCE"
	TypeSellRebalance       TransactionType = "SELL_REBALANCE"
	TypeSellWithdrawal      TransactionType = "SELL_WITHDRAWAL"
	TypeDividend            TransactionType = "DIVIDEND"
	TypeMonthlyContribution TransactionType = "MONTHLY_CONTRIBUTION"
)

// AllTransactionTypes lists every valid transaction type
var AllTransactionTypes = []TransactionType{
	TypeCashCredit,
	TypeCashDebit,
	TypeBuy,
	TypeBuyRebalance,
	TypeSellRebalance,
	TypeSellWithdrawal,
	TypeDividend,
	TypeMonthlyContribution,
}

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	for _, known := range AllTransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsBuy reports whether t adds shares to a position
func (t TransactionType) IsBuy() bool {
	return t == TypeBuy || t == TypeBuyRebalance
}

// IsSell reports whether t removes shares from a position
func (t TransactionType) IsSell() bool {
	return t == TypeSellRebalance || t == TypeSellWithdrawal
}

// IsContribution reports whether t is fresh capital from the investor.
// Only these count as invested for return calculations.
func (t TransactionType) IsContribution() bool {
	return t == TypeCashCredit || t == TypeMonthlyContribution
}

// RequiresTicker reports whether t must reference a security
func (t TransactionType) RequiresTicker() bool {
	return t.IsBuy() || t.IsSell() || t == TypeDividend
}

// CashSign is +1 when t increases the cash balance and -1 when it decreases it
func (t TransactionType) CashSign() float64 {
	switch t {
	case TypeCashDebit, TypeBuy, TypeBuyRebalance:
		return -1
	default:
		return 1
	}
}

// TransactionStatus is the lifecycle state of a ledger row
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusConfirmed TransactionStatus = "CONFIRMED"
	StatusExecuted  TransactionStatus = "EXECUTED"
	StatusRejected  TransactionStatus = "REJECTED"
)

// Valid reports whether s is a known status
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusExecuted, StatusRejected:
		return true
	}
	return false
}

// IsSettled reports whether rows in this state are part of the ledger proper
func (s TransactionStatus) IsSettled() bool {
	return s == StatusConfirmed || s == StatusExecuted
}

// Transaction is one ledger row. Immutable once CONFIRMED unless reverted.
type Transaction struct {
	Date              time.Time         `json:"date"` // Day granularity, UTC midnight
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CashBalanceBefore *float64          `json:"cash_balance_before,omitempty"` // Cached, recomputable
	CashBalanceAfter  *float64          `json:"cash_balance_after,omitempty"`  // Cached, recomputable
	ID                string            `json:"id"`
	PortfolioID       string            `json:"portfolio_id"`
	Type              TransactionType   `json:"type"`
	Ticker            string            `json:"ticker,omitempty"` // Empty for pure cash events
	Status            TransactionStatus `json:"status"`
	Notes             string            `json:"notes,omitempty"`
	Amount            float64           `json:"amount"`
	Price             float64           `json:"price,omitempty"`
	Quantity          float64           `json:"quantity,omitempty"`
	IsAutoSuggested   bool              `json:"is_auto_suggested"`
}

// CashDelta is the signed effect of t on the cash balance
func (t Transaction) CashDelta() float64 {
	return t.Type.CashSign() * t.Amount
}

// RebalanceFrequency is how often a contribution falls due
type RebalanceFrequency string

const (
	FrequencyMonthly   RebalanceFrequency = "monthly"
	FrequencyQuarterly RebalanceFrequency = "quarterly"
	FrequencyYearly    RebalanceFrequency = "yearly"
)

// Months returns the length of one period in months (1, 3 or 12)
func (f RebalanceFrequency) Months() int {
	switch f {
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	default:
		return 1
	}
}

// Valid reports whether f is a known frequency
func (f RebalanceFrequency) Valid() bool {
	return f == FrequencyMonthly || f == FrequencyQuarterly || f == FrequencyYearly
}

// Portfolio is an investor-owned account with a contribution plan
type Portfolio struct {
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	ID                  string             `json:"id"`
	OwnerID             string             `json:"owner_id"`
	Name                string             `json:"name"`
	RebalanceFrequency  RebalanceFrequency `json:"rebalance_frequency"`
	MonthlyContribution float64            `json:"monthly_contribution"`
}

// PortfolioConfigAsset is a target allocation entry. Removal is a soft delete.
type PortfolioConfigAsset struct {
	AddedAt          time.Time  `json:"added_at"`
	RemovedAt        *time.Time `json:"removed_at,omitempty"`
	ID               string     `json:"id"`
	PortfolioID      string     `json:"portfolio_id"`
	Ticker           string     `json:"ticker"`
	TargetAllocation float64    `json:"target_allocation"` // Fraction, 0.25 = 25%
	IsActive         bool       `json:"is_active"`
}

// SectorIndustry is company classification metadata
type SectorIndustry struct {
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// DividendEvent is a declared cash distribution for a security
type DividendEvent struct {
	ExDate         time.Time `json:"ex_date"`
	PaymentDate    time.Time `json:"payment_date"`
	Ticker         string    `json:"ticker"`
	AmountPerShare float64   `json:"amount_per_share"`
}
