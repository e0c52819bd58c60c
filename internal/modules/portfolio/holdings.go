package portfolio

import (
	"context"
	"errors"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SettledLister reads the settled ledger of a portfolio
type SettledLister interface {
	ListSettled(ctx context.Context, portfolioID string) ([]domain.Transaction, error)
}

// HoldingsReport is the live holdings view of a portfolio
type HoldingsReport struct {
	Holdings        []accounting.Holding         `json:"holdings"`
	Inconsistencies []domain.LedgerInconsistency `json:"inconsistencies,omitempty"`
	CashBalance     float64                      `json:"cash_balance"`
	HoldingsValue   float64                      `json:"holdings_value"`
	TotalValue      float64                      `json:"total_value"`
}

// HoldingsService prices the replayed ledger against current quotes
type HoldingsService struct {
	ledger    SettledLister
	targets   *Service
	quotes    domain.QuoteProvider
	threshold accounting.Threshold
	log       zerolog.Logger
}

// NewHoldingsService creates a new holdings service
func NewHoldingsService(
	ledger SettledLister,
	targets *Service,
	quotes domain.QuoteProvider,
	threshold accounting.Threshold,
	log zerolog.Logger,
) *HoldingsService {
	return &HoldingsService{
		ledger:    ledger,
		targets:   targets,
		quotes:    quotes,
		threshold: threshold,
		log:       log.With().Str("service", "holdings").Logger(),
	}
}

// Holdings returns open positions and unheld targets with allocation drift.
// A quote failure degrades to unpriced holdings rather than an error.
func (s *HoldingsService) Holdings(ctx context.Context, portfolioID string) (*HoldingsReport, error) {
	var txs []domain.Transaction
	var targets map[string]float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.ledger.ListSettled(gctx, portfolioID)
		return err
	})
	g.Go(func() error {
		var err error
		targets, err = s.targets.TargetMap(gctx, portfolioID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l := accounting.Replay(txs)
	var inconsistency *domain.InconsistencyError
	if err := l.Err(); errors.As(err, &inconsistency) {
		s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Ledger has oversold positions")
	}

	open := l.Holdings()
	tickers := open.Tickers()
	for ticker := range targets {
		if _, held := open[ticker]; !held {
			tickers = append(tickers, ticker)
		}
	}

	prices, err := s.quotes.GetLatestPrices(ctx, tickers)
	if err != nil {
		s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Quote lookup failed, holdings left unpriced")
		prices = map[string]float64{}
	}

	report := &HoldingsReport{
		Holdings:        l.BuildHoldings(prices, targets, s.threshold),
		Inconsistencies: l.Inconsistencies(),
		CashBalance:     l.Cash(),
	}
	for _, h := range report.Holdings {
		report.HoldingsValue += h.CurrentValue
	}
	report.TotalValue = report.HoldingsValue + report.CashBalance
	return report, nil
}

// ClosedPositions returns fully exited positions with realized returns
func (s *HoldingsService) ClosedPositions(ctx context.Context, portfolioID string) ([]accounting.ClosedPosition, error) {
	txs, err := s.ledger.ListSettled(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return accounting.ClosedPositions(txs), nil
}
