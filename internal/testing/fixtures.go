package testing

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristath/carteira/internal/domain"
)

var fixtureSeq int64

// Date returns a UTC day
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewTransaction builds a CONFIRMED transaction with a unique ID.
// Price is derived from amount/quantity for security rows.
func NewTransaction(portfolioID string, date time.Time, typ domain.TransactionType, ticker string, quantity, amount float64) domain.Transaction {
	id := atomic.AddInt64(&fixtureSeq, 1)
	price := 0.0
	if quantity > 0 {
		price = amount / quantity
	}
	return domain.Transaction{
		ID:          fmt.Sprintf("fx-%05d", id),
		PortfolioID: portfolioID,
		Date:        date,
		Type:        typ,
		Ticker:      ticker,
		Quantity:    quantity,
		Price:       price,
		Amount:      amount,
		Status:      domain.StatusConfirmed,
	}
}

// NewCashCredit builds a CONFIRMED CASH_CREDIT
func NewCashCredit(portfolioID string, date time.Time, amount float64) domain.Transaction {
	return NewTransaction(portfolioID, date, domain.TypeCashCredit, "", 0, amount)
}

// NewPortfolio returns a monthly portfolio owned by ownerID
func NewPortfolio(id, ownerID string, monthly float64) *domain.Portfolio {
	now := time.Now().UTC()
	return &domain.Portfolio{
		ID:                  id,
		OwnerID:             ownerID,
		Name:                "Carteira " + id,
		MonthlyContribution: monthly,
		RebalanceFrequency:  domain.FrequencyMonthly,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
