package marketdata

import (
	"context"

	"github.com/aristath/carteira/internal/clientdata"
	"github.com/aristath/carteira/internal/clients/brapi"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/utils"
	"github.com/rs/zerolog"
)

// DividendAPI fetches declared dividends
type DividendAPI interface {
	GetDividends(ctx context.Context, ticker string) ([]brapi.CashDividend, error)
}

// DividendService implements domain.DividendEventProvider. Events are
// fetched at most once per TTLDividends; history.db keeps the last fetch
// for when the API is unavailable.
type DividendService struct {
	api    DividendAPI
	cache  *clientdata.Repository
	events *DividendEventRepository
	clock  domain.Clock
	log    zerolog.Logger
}

// NewDividendService creates a new dividend service. api and cache may be nil.
func NewDividendService(api DividendAPI, cache *clientdata.Repository, events *DividendEventRepository, clock domain.Clock, log zerolog.Logger) *DividendService {
	return &DividendService{
		api:    api,
		cache:  cache,
		events: events,
		clock:  clock,
		log:    log.With().Str("service", "dividends").Logger(),
	}
}

// FetchDividendEvents returns the declared dividends of ticker
func (s *DividendService) FetchDividendEvents(ctx context.Context, ticker string) ([]domain.DividendEvent, error) {
	ticker = utils.NormalizeTicker(ticker)

	if s.cache != nil {
		var cached []domain.DividendEvent
		found, err := s.cache.GetIfFresh("dividends", ticker, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to read dividend cache")
		} else if found {
			for i := range cached {
				cached[i].ExDate = utils.Day(cached[i].ExDate)
				cached[i].PaymentDate = utils.Day(cached[i].PaymentDate)
			}
			return cached, nil
		}
	}

	if s.api == nil {
		return s.events.ListByTicker(ctx, ticker)
	}

	declared, err := s.api.GetDividends(ctx, ticker)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Dividend API failed, using stored events")
		return s.events.ListByTicker(ctx, ticker)
	}

	events := make([]domain.DividendEvent, 0, len(declared))
	for _, d := range declared {
		if d.Rate <= 0 || d.PaymentDate.IsZero() || d.LastDatePrior.IsZero() {
			continue
		}
		events = append(events, domain.DividendEvent{
			Ticker:         ticker,
			ExDate:         d.ExDate(),
			PaymentDate:    utils.Day(d.PaymentDate),
			AmountPerShare: d.Rate,
		})
	}

	if err := s.events.Replace(ctx, ticker, events, s.clock.Now()); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to store dividend events")
	}
	if s.cache != nil {
		if err := s.cache.Store("dividends", ticker, events, clientdata.TTLDividends); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache dividend events")
		}
	}

	s.log.Debug().Str("ticker", ticker).Int("events", len(events)).Msg("Fetched dividend events")
	return events, nil
}
