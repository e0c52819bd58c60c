package domain

import (
	"context"
	"time"
)

// QuoteProvider returns prices per ticker. Tickers without data are absent
// from the result and are treated as price 0 downstream.
type QuoteProvider interface {
	// GetLatestPrices returns the most recent known price per ticker
	GetLatestPrices(ctx context.Context, tickers []string) (map[string]float64, error)

	// GetPricesAsOf returns the latest price dated on or before date.
	// Never returns a price from after date.
	GetPricesAsOf(ctx context.Context, tickers []string, date time.Time) (map[string]float64, error)
}

// SectorProvider returns classification metadata per ticker
type SectorProvider interface {
	GetCompanySectorIndustry(ctx context.Context, tickers []string) (map[string]SectorIndustry, error)
}

// DividendEventProvider returns declared dividends for a ticker,
// fetching on demand behind a cache
type DividendEventProvider interface {
	FetchDividendEvents(ctx context.Context, ticker string) ([]DividendEvent, error)
}

// Clock abstracts the current time so "today" can be fixed in tests
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}

// MetricsInvalidator is notified whenever a portfolio's settled ledger changes
type MetricsInvalidator interface {
	Invalidate(ctx context.Context, portfolioID string) error
}
