package accounting

// AttributedDividends returns, per currently held ticker, the dividends
// attributable to the shares still held. Each receipt contributes
// amount x min(currentQuantity/sharesHeldAtDividend, 1), so a retained
// partial position does not inherit credit for shares already sold.
func (l *Ledger) AttributedDividends() map[string]float64 {
	out := make(map[string]float64)
	for ticker, receipts := range l.receipts {
		p := l.positions[ticker]
		if p == nil || !p.IsOpen() {
			continue
		}
		total := 0.0
		for _, r := range receipts {
			if r.sharesHeld <= quantityEpsilon {
				continue
			}
			fraction := p.Quantity / r.sharesHeld
			if fraction > 1 {
				fraction = 1
			}
			total += r.amount * fraction
		}
		out[ticker] = total
	}
	return out
}

// LifetimeDividends returns every dividend received per ticker, unattenuated,
// including those paid after the position closed.
func (l *Ledger) LifetimeDividends() map[string]float64 {
	out := make(map[string]float64)
	for ticker, p := range l.positions {
		if p.Dividends > 0 {
			out[ticker] = p.Dividends
		}
	}
	return out
}
