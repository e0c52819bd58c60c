package accounting

import (
	"sort"
	"time"

	"github.com/aristath/carteira/internal/domain"
)

// Position is the replayed state of one ticker, open or closed
type Position struct {
	OpenedAt      time.Time `json:"opened_at"`
	ClosedAt      time.Time `json:"closed_at,omitempty"`
	Ticker        string    `json:"ticker"`
	Quantity      float64   `json:"quantity"`
	TotalInvested float64   `json:"total_invested"` // Average-cost basis of shares still held
	BoughtQty     float64   `json:"bought_qty"`
	SoldQty       float64   `json:"sold_qty"`
	TotalBought   float64   `json:"total_bought"`   // Lifetime purchase amounts
	TotalProceeds float64   `json:"total_proceeds"` // Lifetime sale amounts
	RealizedGain  float64   `json:"realized_gain"`  // Proceeds minus average cost of shares sold
	Dividends     float64   `json:"dividends"`      // Lifetime dividends, unattenuated
}

// AverageCost is TotalInvested/Quantity, 0 for an empty position
func (p Position) AverageCost() float64 {
	if p.Quantity <= quantityEpsilon {
		return 0
	}
	return p.TotalInvested / p.Quantity
}

// IsOpen reports whether shares are still held
func (p Position) IsOpen() bool {
	return p.Quantity > quantityEpsilon
}

type dividendReceipt struct {
	amount     float64
	sharesHeld float64
}

// Ledger accumulates replay state one transaction at a time. Feed it rows
// in SortForReplay order; Replay does that for a whole slice.
type Ledger struct {
	positions       map[string]*Position
	receipts        map[string][]dividendReceipt
	inconsistencies []domain.LedgerInconsistency
	cash            float64
	totals          CashTotals
	buyAmounts      float64
}

// NewLedger returns an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
		receipts:  make(map[string][]dividendReceipt),
	}
}

// Replay applies all settled rows of txs in canonical order
func Replay(txs []domain.Transaction) *Ledger {
	l := NewLedger()
	for _, tx := range SortForReplay(Settled(txs)) {
		l.Apply(tx)
	}
	return l
}

func (l *Ledger) position(ticker string) *Position {
	p, ok := l.positions[ticker]
	if !ok {
		p = &Position{Ticker: ticker}
		l.positions[ticker] = p
	}
	return p
}

// Apply folds one transaction into the state. Status is not checked.
func (l *Ledger) Apply(tx domain.Transaction) {
	l.cash += tx.CashDelta()

	switch {
	case tx.Type.IsContribution():
		l.totals.Invested += tx.Amount
	case tx.Type == domain.TypeCashDebit:
		l.totals.Withdrawn += tx.Amount
	case tx.Type == domain.TypeDividend:
		l.totals.Dividends += tx.Amount
		l.applyDividend(tx)
	case tx.Type.IsBuy():
		if tx.Type == domain.TypeBuy {
			l.buyAmounts += tx.Amount
		}
		l.applyBuy(tx)
	case tx.Type.IsSell():
		l.applySell(tx)
	}
}

func (l *Ledger) applyBuy(tx domain.Transaction) {
	if tx.Ticker == "" {
		return
	}
	p := l.position(tx.Ticker)
	if !p.IsOpen() {
		p.OpenedAt = tx.Date
		p.ClosedAt = time.Time{}
	}
	p.Quantity += tx.Quantity
	p.TotalInvested += tx.Amount
	p.BoughtQty += tx.Quantity
	p.TotalBought += tx.Amount
}

// applySell reduces the basis by averageCost x quantitySold, never by the
// proceeds, so the remaining shares keep their original cost. Selling more
// than held is clamped at zero and recorded.
func (l *Ledger) applySell(tx domain.Transaction) {
	if tx.Ticker == "" {
		return
	}
	p := l.position(tx.Ticker)

	held := p.Quantity
	sold := tx.Quantity
	proceeds := tx.Amount
	if sold > held+quantityEpsilon {
		l.inconsistencies = append(l.inconsistencies, domain.LedgerInconsistency{
			Date:          tx.Date,
			TransactionID: tx.ID,
			Ticker:        tx.Ticker,
			Held:          held,
			Sold:          sold,
		})
		if sold > 0 {
			proceeds = tx.Amount * held / sold
		}
		sold = held
	}

	avgCost := p.AverageCost()
	costOfSold := avgCost * sold

	p.Quantity -= sold
	p.TotalInvested -= costOfSold
	p.SoldQty += sold
	p.TotalProceeds += proceeds
	p.RealizedGain += proceeds - costOfSold

	if p.Quantity <= quantityEpsilon {
		p.Quantity = 0
		p.TotalInvested = 0
		p.ClosedAt = tx.Date
	}
}

func (l *Ledger) applyDividend(tx domain.Transaction) {
	if tx.Ticker == "" {
		return
	}
	p := l.position(tx.Ticker)
	p.Dividends += tx.Amount
	l.receipts[tx.Ticker] = append(l.receipts[tx.Ticker], dividendReceipt{
		amount:     tx.Amount,
		sharesHeld: p.Quantity, // cumulative bought minus cumulative sold
	})
}

// Holdings returns open positions keyed by ticker
func (l *Ledger) Holdings() Holdings {
	h := make(Holdings)
	for ticker, p := range l.positions {
		if p.IsOpen() {
			h[ticker] = *p
		}
	}
	return h
}

// Positions returns every ticker ever touched, sorted by ticker
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Cash returns the replayed cash balance
func (l *Ledger) Cash() float64 {
	return l.cash
}

// Totals returns invested/withdrawn/dividend sums. Invested falls back to
// the sum of BUY amounts when no contributions were ever recorded.
func (l *Ledger) Totals() CashTotals {
	t := l.totals
	if t.Invested <= 0 {
		t.Invested = l.buyAmounts
	}
	return t
}

// Inconsistencies returns the oversells seen so far
func (l *Ledger) Inconsistencies() []domain.LedgerInconsistency {
	return l.inconsistencies
}

// Err returns an *domain.InconsistencyError if any sell was clamped
func (l *Ledger) Err() error {
	if len(l.inconsistencies) == 0 {
		return nil
	}
	return &domain.InconsistencyError{Inconsistencies: l.inconsistencies}
}
