package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/aristath/carteira/internal/clientdata"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/utils"
	"github.com/rs/zerolog"
)

// QuoteAPI fetches live prices
type QuoteAPI interface {
	GetQuotes(ctx context.Context, tickers []string) (map[string]float64, error)
}

type cachedQuote struct {
	Price     float64 `msgpack:"price"`
	FetchedAt int64   `msgpack:"fetched_at"`
}

// QuoteService implements domain.QuoteProvider. Latest prices come from the
// fresh cache, then the API, then stale cache, then the last stored close.
type QuoteService struct {
	api    QuoteAPI
	cache  *clientdata.Repository
	prices *PriceRepository
	clock  domain.Clock
	log    zerolog.Logger
}

// NewQuoteService creates a new quote service. api and cache may be nil.
func NewQuoteService(api QuoteAPI, cache *clientdata.Repository, prices *PriceRepository, clock domain.Clock, log zerolog.Logger) *QuoteService {
	return &QuoteService{
		api:    api,
		cache:  cache,
		prices: prices,
		clock:  clock,
		log:    log.With().Str("service", "quotes").Logger(),
	}
}

// GetLatestPrices returns the best known price of each ticker. Tickers with
// no price anywhere are absent from the result.
func (s *QuoteService) GetLatestPrices(ctx context.Context, tickers []string) (map[string]float64, error) {
	tickers = uniqueTickers(tickers)
	out := make(map[string]float64, len(tickers))

	var misses []string
	for _, ticker := range tickers {
		if price, ok := s.cached(ticker, true); ok {
			out[ticker] = price
			continue
		}
		misses = append(misses, ticker)
	}

	if len(misses) > 0 && s.api != nil {
		fetched, err := s.api.GetQuotes(ctx, misses)
		if err != nil {
			s.log.Warn().Err(err).Strs("tickers", misses).Msg("Quote API failed, falling back to stored prices")
		} else {
			s.remember(ctx, fetched)
			for ticker, price := range fetched {
				out[ticker] = price
			}
		}
	}

	var unpriced []string
	for _, ticker := range misses {
		if _, ok := out[ticker]; ok {
			continue
		}
		if price, ok := s.cached(ticker, false); ok {
			out[ticker] = price
			continue
		}
		unpriced = append(unpriced, ticker)
	}

	if len(unpriced) > 0 {
		closes, err := s.prices.LatestCloses(ctx, unpriced)
		if err != nil {
			return nil, err
		}
		var missing []string
		for _, ticker := range unpriced {
			if price, ok := closes[ticker]; ok {
				out[ticker] = price
			} else {
				missing = append(missing, ticker)
			}
		}
		if len(missing) > 0 {
			s.log.Warn().Strs("tickers", missing).Msg("No price available")
		}
	}

	return out, nil
}

// GetPricesAsOf returns the latest stored close on or before date. It never
// consults live quotes, so there is no look-ahead.
func (s *QuoteService) GetPricesAsOf(ctx context.Context, tickers []string, date time.Time) (map[string]float64, error) {
	return s.prices.ClosesAsOf(ctx, uniqueTickers(tickers), date)
}

func (s *QuoteService) cached(ticker string, freshOnly bool) (float64, bool) {
	if s.cache == nil {
		return 0, false
	}

	var q cachedQuote
	var found bool
	var err error
	if freshOnly {
		found, err = s.cache.GetIfFresh("quotes", ticker, &q)
	} else {
		found, err = s.cache.Get("quotes", ticker, &q)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to read quote cache")
		return 0, false
	}
	return q.Price, found && q.Price > 0
}

// remember caches fetched quotes and records them as today's close
func (s *QuoteService) remember(ctx context.Context, fetched map[string]float64) {
	now := s.clock.Now()
	for ticker, price := range fetched {
		if s.cache != nil {
			if err := s.cache.Store("quotes", ticker, cachedQuote{Price: price, FetchedAt: now.Unix()}, clientdata.TTLQuote); err != nil {
				s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache quote")
			}
		}
		if err := s.prices.UpsertClose(ctx, ticker, utils.Day(now), price); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to store daily close")
		}
	}
}

func uniqueTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = utils.NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
