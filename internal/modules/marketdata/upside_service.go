package marketdata

import (
	"context"
	"sort"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/pkg/formulas"
	"github.com/rs/zerolog"
)

// Upside compares the current price of a ticker with its fair values
type Upside struct {
	Ticker     string             `json:"ticker"`
	FairValues []FairValue        `json:"fair_values"`
	Upsides    map[string]float64 `json:"upsides"` // Strategy -> fairValue/price - 1
	Price      float64            `json:"price"`
	MeanUpside float64            `json:"mean_upside"`
}

// UpsideService ranks tickers by the distance to their fair values
type UpsideService struct {
	quotes     domain.QuoteProvider
	fairValues *FairValueRepository
	log        zerolog.Logger
}

// NewUpsideService creates a new upside screening service
func NewUpsideService(quotes domain.QuoteProvider, fairValues *FairValueRepository, log zerolog.Logger) *UpsideService {
	return &UpsideService{
		quotes:     quotes,
		fairValues: fairValues,
		log:        log.With().Str("service", "upside").Logger(),
	}
}

// Screen returns the upside of each ticker that has both a price and at
// least one fair value, ordered by mean upside descending
func (s *UpsideService) Screen(ctx context.Context, tickers []string) ([]Upside, error) {
	tickers = uniqueTickers(tickers)

	prices, err := s.quotes.GetLatestPrices(ctx, tickers)
	if err != nil {
		return nil, err
	}
	values, err := s.fairValues.ListByTickers(ctx, tickers)
	if err != nil {
		return nil, err
	}

	out := make([]Upside, 0, len(tickers))
	for _, ticker := range tickers {
		price := prices[ticker]
		fvs := values[ticker]
		if price <= 0 || len(fvs) == 0 {
			continue
		}

		u := Upside{Ticker: ticker, Price: price, FairValues: fvs, Upsides: make(map[string]float64, len(fvs))}
		upsides := make([]float64, 0, len(fvs))
		for _, fv := range fvs {
			up := fv.Value/price - 1
			u.Upsides[fv.Strategy] = up
			upsides = append(upsides, up)
		}
		u.MeanUpside = formulas.Mean(upsides)
		out = append(out, u)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].MeanUpside > out[j].MeanUpside })
	return out, nil
}
