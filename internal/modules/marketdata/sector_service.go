package marketdata

import (
	"context"

	"github.com/aristath/carteira/internal/clients/brapi"
	"github.com/aristath/carteira/internal/domain"
	"github.com/rs/zerolog"
)

// ProfileAPI fetches company classification
type ProfileAPI interface {
	GetProfile(ctx context.Context, ticker string) (*brapi.Profile, error)
}

// SectorService implements domain.SectorProvider from company_profiles,
// filling gaps from the API when one is configured
type SectorService struct {
	api       ProfileAPI
	companies *CompanyRepository
	log       zerolog.Logger
}

// NewSectorService creates a new sector service. api may be nil.
func NewSectorService(api ProfileAPI, companies *CompanyRepository, log zerolog.Logger) *SectorService {
	return &SectorService{
		api:       api,
		companies: companies,
		log:       log.With().Str("service", "sectors").Logger(),
	}
}

// GetCompanySectorIndustry returns the classification of the known tickers.
// Unknown tickers are omitted; callers bucket them as "Outros".
func (s *SectorService) GetCompanySectorIndustry(ctx context.Context, tickers []string) (map[string]domain.SectorIndustry, error) {
	tickers = uniqueTickers(tickers)
	out, err := s.companies.GetMany(ctx, tickers)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, ticker := range tickers {
		if _, ok := out[ticker]; ok {
			continue
		}
		if s.api != nil {
			if info, ok := s.fetch(ctx, ticker); ok {
				out[ticker] = info
				continue
			}
		}
		missing = append(missing, ticker)
	}

	if len(missing) > 0 {
		s.log.Debug().Strs("tickers", missing).Msg("No sector metadata")
	}
	return out, nil
}

func (s *SectorService) fetch(ctx context.Context, ticker string) (domain.SectorIndustry, bool) {
	profile, err := s.api.GetProfile(ctx, ticker)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to fetch company profile")
		return domain.SectorIndustry{}, false
	}
	if profile == nil || profile.Sector == "" {
		return domain.SectorIndustry{}, false
	}

	info := domain.SectorIndustry{Sector: profile.Sector, Industry: profile.Industry}
	if err := s.companies.Upsert(ctx, ticker, "", info); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to store company profile")
	}
	return info, true
}
