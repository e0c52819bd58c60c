package portfolio

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
	"github.com/aristath/carteira/internal/utils"
	"github.com/rs/zerolog"
)

// AllocationTolerance is how far the target sum may drift from 1.0
const AllocationTolerance = 0.005

// AssetTarget is one requested target allocation
type AssetTarget struct {
	Ticker           string  `json:"ticker"`
	TargetAllocation float64 `json:"target_allocation"`
}

// CreateInput holds the fields of a new portfolio
type CreateInput struct {
	Name                string                    `json:"name"`
	RebalanceFrequency  domain.RebalanceFrequency `json:"rebalance_frequency"`
	MonthlyContribution float64                   `json:"monthly_contribution"`
}

// UpdateInput holds the editable portfolio fields. Nil fields are unchanged.
type UpdateInput struct {
	Name                *string                    `json:"name"`
	RebalanceFrequency  *domain.RebalanceFrequency `json:"rebalance_frequency"`
	MonthlyContribution *float64                   `json:"monthly_contribution"`
}

// EventEmitter publishes typed events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Service owns portfolio configuration
type Service struct {
	repo        *Repository
	emitter     EventEmitter
	invalidator domain.MetricsInvalidator
	log         zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(repo *Repository, emitter EventEmitter, invalidator domain.MetricsInvalidator, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		emitter:     emitter,
		invalidator: invalidator,
		log:         log.With().Str("service", "portfolio").Logger(),
	}
}

// SetInvalidator wires the metrics engine after construction. The engine
// itself depends on this service, so it cannot be passed to NewService.
func (s *Service) SetInvalidator(invalidator domain.MetricsInvalidator) {
	s.invalidator = invalidator
}

// Create validates and stores a new portfolio owned by ownerID
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.Portfolio, error) {
	p := &domain.Portfolio{
		OwnerID:             ownerID,
		Name:                strings.TrimSpace(input.Name),
		MonthlyContribution: input.MonthlyContribution,
		RebalanceFrequency:  input.RebalanceFrequency,
	}
	if p.RebalanceFrequency == "" {
		p.RebalanceFrequency = domain.FrequencyMonthly
	}
	if err := validatePortfolio(p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", p.ID).
		Str("owner_id", ownerID).
		Msg("Portfolio created")
	return p, nil
}

// Get returns the portfolio when ownerID owns it. A portfolio of another
// owner is reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Portfolio, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, domain.NewNotFound("portfolio", id)
	}
	return p, nil
}

// Authorize checks that ownerID owns portfolio id
func (s *Service) Authorize(ctx context.Context, ownerID, id string) error {
	_, err := s.Get(ctx, ownerID, id)
	return err
}

// Load returns a portfolio regardless of owner, for background jobs
func (s *Service) Load(ctx context.Context, id string) (*domain.Portfolio, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NewNotFound("portfolio", id)
	}
	return p, nil
}

// List returns the portfolios of ownerID
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Portfolio, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// ListAll returns every portfolio, for background jobs
func (s *Service) ListAll(ctx context.Context) ([]domain.Portfolio, error) {
	return s.repo.ListAll(ctx)
}

// Update changes name, contribution amount or frequency
func (s *Service) Update(ctx context.Context, ownerID, id string, input UpdateInput) (*domain.Portfolio, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		p.Name = strings.TrimSpace(*input.Name)
	}
	if input.MonthlyContribution != nil {
		p.MonthlyContribution = *input.MonthlyContribution
	}
	if input.RebalanceFrequency != nil {
		p.RebalanceFrequency = *input.RebalanceFrequency
	}
	if err := validatePortfolio(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetTargetAllocations replaces the active targets of portfolioID.
// Targets must be non-empty, non-negative, unique per ticker and sum to
// 1.0 within AllocationTolerance.
func (s *Service) SetTargetAllocations(ctx context.Context, portfolioID string, targets []AssetTarget) ([]domain.PortfolioConfigAsset, error) {
	normalized, err := ValidateTargets(targets)
	if err != nil {
		return nil, err
	}
	if _, err := s.Load(ctx, portfolioID); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceTargets(ctx, portfolioID, normalized); err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(normalized))
	for ticker := range normalized {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Strs("tickers", tickers).
		Msg("Target allocations replaced")

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, portfolioID); err != nil {
			s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to invalidate metrics snapshot")
		}
	}
	if s.emitter != nil {
		s.emitter.Emit("portfolio", &events.TargetsChangedData{PortfolioID: portfolioID, Tickers: tickers})
	}

	return s.ActiveTargets(ctx, portfolioID)
}

// ActiveTargets returns the active config assets of portfolioID
func (s *Service) ActiveTargets(ctx context.Context, portfolioID string) ([]domain.PortfolioConfigAsset, error) {
	return s.repo.ListTargets(ctx, portfolioID, false)
}

// TargetMap returns the active targets of portfolioID keyed by ticker
func (s *Service) TargetMap(ctx context.Context, portfolioID string) (map[string]float64, error) {
	assets, err := s.ActiveTargets(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(assets))
	for _, a := range assets {
		out[a.Ticker] = a.TargetAllocation
	}
	return out, nil
}

// ValidateTargets checks a target list and returns it keyed by upper-cased ticker
func ValidateTargets(targets []AssetTarget) (map[string]float64, error) {
	if len(targets) == 0 {
		return nil, domain.NewValidation("targets", "at least one asset is required")
	}

	out := make(map[string]float64, len(targets))
	sum := 0.0
	for _, t := range targets {
		ticker := utils.NormalizeTicker(t.Ticker)
		if ticker == "" {
			return nil, domain.NewValidation("ticker", "must not be empty")
		}
		if _, dup := out[ticker]; dup {
			return nil, domain.NewValidation("ticker", "%s appears more than once", ticker)
		}
		if t.TargetAllocation < 0 || math.IsNaN(t.TargetAllocation) || math.IsInf(t.TargetAllocation, 0) {
			return nil, domain.NewValidation("target_allocation", "%s must be a non-negative fraction", ticker)
		}
		out[ticker] = t.TargetAllocation
		sum += t.TargetAllocation
	}

	if math.Abs(sum-1.0) > AllocationTolerance {
		return nil, domain.NewValidation("target_allocation", "targets sum to %.4f, expected 1.0", sum)
	}
	return out, nil
}

func validatePortfolio(p *domain.Portfolio) error {
	if p.Name == "" {
		return domain.NewValidation("name", "must not be empty")
	}
	if p.MonthlyContribution < 0 || math.IsNaN(p.MonthlyContribution) || math.IsInf(p.MonthlyContribution, 0) {
		return domain.NewValidation("monthly_contribution", "must be a non-negative amount")
	}
	if !p.RebalanceFrequency.Valid() {
		return domain.NewValidation("rebalance_frequency", "must be monthly, quarterly or yearly")
	}
	return nil
}
