package suggestions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/carteira/internal/database"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/modules/ledger"
	"github.com/aristath/carteira/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentDividendFetches bounds dividend lookups per generation run
const maxConcurrentDividendFetches = 4

// PortfolioSource resolves portfolios and their active targets
type PortfolioSource interface {
	Load(ctx context.Context, id string) (*domain.Portfolio, error)
	TargetMap(ctx context.Context, portfolioID string) (map[string]float64, error)
	ListAll(ctx context.Context) ([]domain.Portfolio, error)
}

// EventEmitter publishes domain events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Engine runs the suggestion pipeline against the stores
type Engine struct {
	ledgerDB    *sql.DB
	repo        *ledger.TransactionRepository
	portfolios  PortfolioSource
	quotes      domain.QuoteProvider
	dividends   domain.DividendEventProvider
	decisions   *DecisionRepository
	invalidator domain.MetricsInvalidator
	emitter     EventEmitter
	clock       domain.Clock
	threshold   accounting.Threshold
	log         zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // serializes Generate per portfolio
}

// NewEngine creates a new suggestion engine
func NewEngine(
	ledgerDB *sql.DB,
	repo *ledger.TransactionRepository,
	portfolios PortfolioSource,
	quotes domain.QuoteProvider,
	dividends domain.DividendEventProvider,
	decisions *DecisionRepository,
	invalidator domain.MetricsInvalidator,
	emitter EventEmitter,
	clock domain.Clock,
	threshold accounting.Threshold,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		ledgerDB:    ledgerDB,
		repo:        repo,
		portfolios:  portfolios,
		quotes:      quotes,
		dividends:   dividends,
		decisions:   decisions,
		invalidator: invalidator,
		emitter:     emitter,
		clock:       clock,
		threshold:   threshold,
		log:         log.With().Str("service", "suggestions").Logger(),
		locks:       make(map[string]*sync.Mutex),
	}
}

// portfolioLock returns the mutex guarding generation for portfolioID
func (e *Engine) portfolioLock(portfolioID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	mu, ok := e.locks[portfolioID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[portfolioID] = mu
	}
	return mu
}

// Generate removes stale suggestions, plans new ones and persists them as
// PENDING rows in a single ledger transaction. Calling it again without
// acting on the result creates nothing new.
func (e *Engine) Generate(ctx context.Context, portfolioID string) (*Result, error) {
	mu := e.portfolioLock(portfolioID)
	mu.Lock()
	defer mu.Unlock()

	timer := utils.NewTimer("generate_suggestions", e.log)
	defer timer.Stop()

	p, err := e.portfolios.Load(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if _, err := e.repo.DeleteStalePending(ctx, portfolioID, utils.MonthStart(now)); err != nil {
		return nil, err
	}

	in, err := e.gather(ctx, p, now)
	if err != nil {
		return nil, err
	}

	planned, decisions := Plan(*in)

	created := make([]domain.Transaction, 0, len(planned))
	if len(planned) > 0 {
		err := database.WithTransaction(e.ledgerDB, func(tx *sql.Tx) error {
			repo := e.repo.WithTx(tx)
			for _, s := range planned {
				row := s.Transaction(portfolioID)
				if err := repo.Create(ctx, &row); err != nil {
					return err
				}
				created = append(created, row)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to persist suggestions: %w", err)
		}
	}

	// Decisions are only recorded alongside the trades they explain
	if !proposesContribution(created) {
		decisions = make([]RebalanceDecision, 0)
	}
	if err := e.decisions.CreateBatch(ctx, decisions); err != nil {
		return nil, err
	}

	pending, err := e.repo.ListPendingAuto(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	if len(created) > 0 && e.invalidator != nil {
		if err := e.invalidator.Invalidate(ctx, portfolioID); err != nil {
			e.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to invalidate metrics")
		}
	}
	e.announce(portfolioID, len(created), len(pending), decisions)

	e.log.Info().
		Str("portfolio_id", portfolioID).
		Int("created", len(created)).
		Int("pending", len(pending)).
		Int("decisions", len(decisions)).
		Msg("Suggestions generated")

	return &Result{Suggestions: created, Pending: pending, Decisions: decisions}, nil
}

// gather fans out the independent reads Plan needs
func (e *Engine) gather(ctx context.Context, p *domain.Portfolio, now time.Time) (*PlanInput, error) {
	in := &PlanInput{Now: now, Portfolio: *p, Threshold: e.threshold}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Settled, err = e.repo.ListSettled(gctx, p.ID)
		return err
	})
	g.Go(func() error {
		var err error
		in.Targets, err = e.portfolios.TargetMap(gctx, p.ID)
		return err
	})
	g.Go(func() error {
		var err error
		in.LastContribution, err = e.repo.LastSettledDate(gctx, p.ID, domain.TypeCashCredit, domain.TypeMonthlyContribution)
		return err
	})
	g.Go(func() error {
		var err error
		in.Existing, err = e.repo.List(gctx, ledger.Filter{
			PortfolioID: p.ID,
			Statuses:    []domain.TransactionStatus{domain.StatusPending, domain.StatusRejected},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	held := accounting.Replay(in.Settled).Holdings().Tickers()
	sort.Strings(held)
	tickers := append([]string{}, held...)
	for ticker := range in.Targets {
		if !contains(held, ticker) {
			tickers = append(tickers, ticker)
		}
	}

	in.Prices = map[string]float64{}
	in.Dividends = make(map[string][]domain.DividendEvent, len(held))
	var mu sync.Mutex

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDividendFetches + 1)
	if len(tickers) > 0 {
		g.Go(func() error {
			prices, err := e.quotes.GetLatestPrices(gctx, tickers)
			if err != nil {
				e.log.Warn().Err(err).Str("portfolio_id", p.ID).Msg("Failed to get latest prices")
				return nil
			}
			in.Prices = prices
			return nil
		})
	}
	for _, ticker := range held {
		g.Go(func() error {
			dividends, err := e.dividends.FetchDividendEvents(gctx, ticker)
			if err != nil {
				e.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to fetch dividend events")
				return nil
			}
			mu.Lock()
			in.Dividends[ticker] = dividends
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return in, nil
}

func (e *Engine) announce(portfolioID string, created, pending int, decisions []RebalanceDecision) {
	if e.emitter == nil {
		return
	}
	for _, d := range decisions {
		e.emitter.Emit("suggestions", &events.RebalanceDecidedData{
			DecisionID:       d.ID,
			PortfolioID:      d.PortfolioID,
			Ticker:           d.Ticker,
			Action:           string(d.Action),
			Reason:           d.Reason,
			ActualAllocation: d.ActualAllocation,
			TargetAllocation: d.TargetAllocation,
			Deviation:        d.Deviation,
			Quantity:         d.Quantity,
			Profitability:    d.Profitability,
			NeedsRebalancing: d.NeedsRebalancing,
		})
	}
	e.emitter.Emit("suggestions", &events.SuggestionsGeneratedData{
		PortfolioID: portfolioID,
		Created:     created,
		Pending:     pending,
		Decisions:   len(decisions),
	})
}

// GenerateAll runs Generate for every portfolio. A failing portfolio is
// logged and skipped; the failures are returned joined.
func (e *Engine) GenerateAll(ctx context.Context) (int, error) {
	portfolios, err := e.portfolios.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for _, p := range portfolios {
		result, err := e.Generate(ctx, p.ID)
		if err != nil {
			e.log.Error().Err(err).Str("portfolio_id", p.ID).Msg("Failed to generate suggestions")
			errs = append(errs, fmt.Errorf("portfolio %s: %w", p.ID, err))
			continue
		}
		created += len(result.Suggestions)
	}
	return created, errors.Join(errs...)
}

// Decisions returns the decision log of portfolioID, newest first
func (e *Engine) Decisions(ctx context.Context, portfolioID string, limit int) ([]RebalanceDecision, error) {
	return e.decisions.ListByPortfolio(ctx, portfolioID, limit)
}

// proposesContribution reports whether rows hold a contribution or a trade
func proposesContribution(rows []domain.Transaction) bool {
	for _, tx := range rows {
		if tx.Type.IsContribution() || tx.Type.IsBuy() || tx.Type.IsSell() {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
