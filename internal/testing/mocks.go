package testing

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
)

// FixedClock is a domain.Clock frozen at T
type FixedClock struct {
	mu sync.RWMutex
	T  time.Time
}

// NewFixedClock returns a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{T: t}
}

// Now returns the frozen time
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.T
}

// Set moves the clock
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.T = t
}

type datedPrice struct {
	date  time.Time
	price float64
}

// MockQuoteProvider is an in-memory domain.QuoteProvider
type MockQuoteProvider struct {
	mu      sync.RWMutex
	latest  map[string]float64
	history map[string][]datedPrice
	err     error
}

// NewMockQuoteProvider creates an empty quote provider
func NewMockQuoteProvider() *MockQuoteProvider {
	return &MockQuoteProvider{
		latest:  make(map[string]float64),
		history: make(map[string][]datedPrice),
	}
}

// SetLatest sets the latest price of ticker
func (m *MockQuoteProvider) SetLatest(ticker string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[ticker] = price
}

// AddHistory records a historical close. Add in ascending date order.
func (m *MockQuoteProvider) AddHistory(ticker string, date time.Time, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[ticker] = append(m.history[ticker], datedPrice{date: date, price: price})
}

// SetError makes every call fail with err
func (m *MockQuoteProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// GetLatestPrices returns the configured latest prices
func (m *MockQuoteProvider) GetLatestPrices(_ context.Context, tickers []string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]float64)
	for _, ticker := range tickers {
		if price, ok := m.latest[ticker]; ok {
			out[ticker] = price
		}
	}
	return out, nil
}

// GetPricesAsOf returns the latest recorded close on or before date
func (m *MockQuoteProvider) GetPricesAsOf(_ context.Context, tickers []string, date time.Time) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]float64)
	for _, ticker := range tickers {
		for _, p := range m.history[ticker] {
			if p.date.After(date) {
				break
			}
			out[ticker] = p.price
		}
	}
	return out, nil
}

// MockSectorProvider is an in-memory domain.SectorProvider
type MockSectorProvider struct {
	Data map[string]domain.SectorIndustry
}

// GetCompanySectorIndustry returns the known entries
func (m *MockSectorProvider) GetCompanySectorIndustry(_ context.Context, tickers []string) (map[string]domain.SectorIndustry, error) {
	out := make(map[string]domain.SectorIndustry)
	for _, ticker := range tickers {
		if si, ok := m.Data[ticker]; ok {
			out[ticker] = si
		}
	}
	return out, nil
}

// MockDividendProvider is an in-memory domain.DividendEventProvider
type MockDividendProvider struct {
	mu     sync.RWMutex
	events map[string][]domain.DividendEvent
	calls  int
}

// NewMockDividendProvider creates an empty dividend provider
func NewMockDividendProvider() *MockDividendProvider {
	return &MockDividendProvider{events: make(map[string][]domain.DividendEvent)}
}

// Add registers a dividend event
func (m *MockDividendProvider) Add(event domain.DividendEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.Ticker] = append(m.events[event.Ticker], event)
}

// Calls returns how many fetches were made
func (m *MockDividendProvider) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// FetchDividendEvents returns the registered events of ticker
func (m *MockDividendProvider) FetchDividendEvents(_ context.Context, ticker string) ([]domain.DividendEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.events[ticker], nil
}

// MockInvalidator records invalidated portfolios
type MockInvalidator struct {
	mu          sync.Mutex
	Invalidated []string
}

// Invalidate records portfolioID
func (m *MockInvalidator) Invalidate(_ context.Context, portfolioID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, portfolioID)
	return nil
}

// Count returns the number of invalidations
func (m *MockInvalidator) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Invalidated)
}

// RecordingEmitter captures emitted events synchronously
type RecordingEmitter struct {
	mu     sync.Mutex
	Events []events.EventData
}

// Emit records data
func (r *RecordingEmitter) Emit(_ string, data events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, data)
}

// Types returns the emitted event types in order
func (r *RecordingEmitter) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.EventType())
	}
	return out
}
