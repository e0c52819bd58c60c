package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/utils"
	"github.com/aristath/carteira/pkg/formulas"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentPriceReads bounds the as-of price lookups of one evolution build
const maxConcurrentPriceReads = 4

// SettledLister reads the settled ledger of a portfolio
type SettledLister interface {
	ListSettled(ctx context.Context, portfolioID string) ([]domain.Transaction, error)
}

// PortfolioSource resolves portfolios and their active targets
type PortfolioSource interface {
	Load(ctx context.Context, id string) (*domain.Portfolio, error)
	TargetMap(ctx context.Context, portfolioID string) (map[string]float64, error)
}

// EventEmitter publishes domain events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Engine computes and caches portfolio metrics snapshots
type Engine struct {
	ledger       SettledLister
	portfolios   PortfolioSource
	quotes       domain.QuoteProvider
	sectors      domain.SectorProvider
	repo         *SnapshotRepository
	emitter      EventEmitter
	clock        domain.Clock
	threshold    accounting.Threshold
	riskFreeRate float64
	log          zerolog.Logger
}

// NewEngine creates a new metrics engine
func NewEngine(
	ledger SettledLister,
	portfolios PortfolioSource,
	quotes domain.QuoteProvider,
	sectors domain.SectorProvider,
	repo *SnapshotRepository,
	emitter EventEmitter,
	clock domain.Clock,
	threshold accounting.Threshold,
	riskFreeRate float64,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		ledger:       ledger,
		portfolios:   portfolios,
		quotes:       quotes,
		sectors:      sectors,
		repo:         repo,
		emitter:      emitter,
		clock:        clock,
		threshold:    threshold,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("service", "metrics").Logger(),
	}
}

// monthState is the replayed ledger at one month-end, before pricing
type monthState struct {
	date      time.Time
	positions map[string]float64
	cash      float64
	invested  float64
	current   bool
}

// Get returns the cached snapshot, recomputing it when missing or stale
func (e *Engine) Get(ctx context.Context, portfolioID string) (*Snapshot, error) {
	snapshot, err := e.repo.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil && !snapshot.IsStale {
		return snapshot, nil
	}
	return e.Compute(ctx, portfolioID)
}

// Invalidate marks the snapshot of portfolioID stale
func (e *Engine) Invalidate(ctx context.Context, portfolioID string) error {
	return e.repo.MarkStale(ctx, portfolioID)
}

// RefreshStale recomputes every stale snapshot. A failing portfolio is
// logged and skipped; the failures are returned joined.
func (e *Engine) RefreshStale(ctx context.Context) (int, error) {
	ids, err := e.repo.ListStale(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	var errs []error
	for _, id := range ids {
		if _, err := e.Compute(ctx, id); err != nil {
			e.log.Error().Err(err).Str("portfolio_id", id).Msg("Failed to refresh metrics")
			errs = append(errs, err)
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

// Compute rebuilds and persists the snapshot of portfolioID
func (e *Engine) Compute(ctx context.Context, portfolioID string) (*Snapshot, error) {
	timer := utils.NewTimer("metrics_compute", e.log)
	defer timer.Stop()

	var txs []domain.Transaction
	var targets map[string]float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.portfolios.Load(gctx, portfolioID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = e.ledger.ListSettled(gctx, portfolioID)
		return err
	})
	g.Go(func() error {
		var err error
		targets, err = e.portfolios.TargetMap(gctx, portfolioID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	today := utils.Day(now)

	l := accounting.Replay(txs)
	var inconsistency *domain.InconsistencyError
	if err := l.Err(); errors.As(err, &inconsistency) {
		e.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Ledger has oversold positions")
	}

	held := l.Holdings().Tickers()
	var prices map[string]float64
	var sectors map[string]domain.SectorIndustry

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		prices = e.latestPrices(gctx, unionTickers(held, targets))
		return nil
	})
	g.Go(func() error {
		sectors = e.sectorData(gctx, held)
		return nil
	})
	_ = g.Wait()

	holdings := l.BuildHoldings(prices, targets, e.threshold)
	totals := l.Totals()

	snapshot := &Snapshot{
		ComputedAt:     now.UTC(),
		PortfolioID:    portfolioID,
		Holdings:       holdings,
		CashBalance:    l.Cash(),
		TotalInvested:  totals.Invested,
		TotalWithdrawn: totals.Withdrawn,
		TotalDividends: totals.Dividends,
		DataGaps:       make([]string, 0),
	}

	holdingsValue := 0.0
	for _, h := range holdings {
		holdingsValue += h.CurrentValue
		if h.Quantity > 0 && h.MissingPrice {
			snapshot.DataGaps = append(snapshot.DataGaps, h.Ticker)
		}
	}
	snapshot.CurrentValue = holdingsValue + snapshot.CashBalance
	if len(snapshot.DataGaps) > 0 {
		e.log.Warn().Strs("tickers", snapshot.DataGaps).Str("portfolio_id", portfolioID).Msg("Holdings valued without price")
	}

	evolution, err := e.buildEvolution(ctx, txs, prices, today)
	if err != nil {
		return nil, err
	}
	snapshot.Evolution = evolution
	snapshot.MonthlyReturns = monthlyReturns(evolution)

	values := make([]float64, len(evolution))
	for i, p := range evolution {
		values[i] = p.PortfolioValue
	}
	returns := formulas.SimpleReturns(values)

	snapshot.TotalReturn = formulas.TotalReturn(snapshot.CurrentValue, snapshot.TotalWithdrawn, snapshot.TotalInvested)
	if first := firstDate(txs); !first.IsZero() {
		snapshot.AnnualizedReturn = formulas.AnnualizedReturn(snapshot.TotalReturn, utils.MonthsBetween(first, today))
	}
	snapshot.Volatility = formulas.AnnualizedVolatility(returns, formulas.MonthsPerYear)
	snapshot.SharpeRatio = formulas.CalculateSharpeRatio(snapshot.AnnualizedReturn, e.riskFreeRate, snapshot.Volatility)
	snapshot.MaxDrawdown = formulas.CalculateMaxDrawdown(values)

	snapshot.SectorAllocation = allocationBy(holdings, holdingsValue, func(ticker string) string {
		return sectors[ticker].Sector
	})
	snapshot.IndustryAllocation = allocationBy(holdings, holdingsValue, func(ticker string) string {
		return sectors[ticker].Industry
	})

	sanitize(snapshot)
	if err := e.repo.Upsert(ctx, snapshot); err != nil {
		return nil, err
	}

	if e.emitter != nil {
		e.emitter.Emit("metrics", &events.MetricsRefreshedData{
			PortfolioID:  portfolioID,
			CurrentValue: snapshot.CurrentValue,
			TotalReturn:  snapshot.TotalReturn,
			DataGaps:     snapshot.DataGaps,
		})
	}

	e.log.Info().
		Str("portfolio_id", portfolioID).
		Float64("current_value", snapshot.CurrentValue).
		Int("evolution_points", len(evolution)).
		Msg("Metrics computed")

	return snapshot, nil
}

// latestPrices degrades a provider failure to an empty price map
func (e *Engine) latestPrices(ctx context.Context, tickers []string) map[string]float64 {
	if len(tickers) == 0 {
		return map[string]float64{}
	}
	prices, err := e.quotes.GetLatestPrices(ctx, tickers)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to get latest prices, valuing holdings at 0")
		return map[string]float64{}
	}
	return prices
}

func (e *Engine) sectorData(ctx context.Context, tickers []string) map[string]domain.SectorIndustry {
	if len(tickers) == 0 || e.sectors == nil {
		return map[string]domain.SectorIndustry{}
	}
	data, err := e.sectors.GetCompanySectorIndustry(ctx, tickers)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to get sector data, using other bucket")
		return map[string]domain.SectorIndustry{}
	}
	return data
}

// buildEvolution replays txs month by month from the first transaction to
// today. Past months are priced as-of their last day; the current month uses
// latest, which holds the live quotes.
func (e *Engine) buildEvolution(
	ctx context.Context,
	txs []domain.Transaction,
	latest map[string]float64,
	today time.Time,
) ([]EvolutionPoint, error) {
	ordered := accounting.SortForReplay(accounting.Settled(txs))
	if len(ordered) == 0 {
		return make([]EvolutionPoint, 0), nil
	}

	var states []monthState
	l := accounting.NewLedger()
	next := 0
	for month := utils.MonthStart(ordered[0].Date); !month.After(today); month = utils.AddMonths(month, 1) {
		end := utils.MonthEnd(month)
		current := utils.SameMonth(month, today)
		if current {
			end = today
		}
		for next < len(ordered) && !ordered[next].Date.After(end) {
			l.Apply(ordered[next])
			next++
		}

		positions := make(map[string]float64)
		for ticker, p := range l.Holdings() {
			positions[ticker] = p.Quantity
		}
		states = append(states, monthState{
			date:      end,
			positions: positions,
			cash:      l.Cash(),
			invested:  l.Totals().Invested,
			current:   current,
		})
	}

	priced := make([]map[string]float64, len(states))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPriceReads)
	for i, state := range states {
		if state.current || len(state.positions) == 0 {
			priced[i] = latest
			continue
		}
		g.Go(func() error {
			tickers := make([]string, 0, len(state.positions))
			for ticker := range state.positions {
				tickers = append(tickers, ticker)
			}
			prices, err := e.quotes.GetPricesAsOf(gctx, tickers, state.date)
			if err != nil {
				e.log.Warn().Err(err).Time("date", state.date).Msg("Failed to get historical prices")
				prices = map[string]float64{}
			}
			priced[i] = prices
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to price evolution: %w", err)
	}

	points := make([]EvolutionPoint, 0, len(states))
	for i, state := range states {
		value := state.cash
		for ticker, qty := range state.positions {
			value += qty * priced[i][ticker]
		}
		points = append(points, EvolutionPoint{
			Date:               state.date,
			PortfolioValue:     value,
			CashBalance:        state.cash,
			CumulativeInvested: state.invested,
		})
	}
	return points, nil
}

// monthlyReturns is the simple change between consecutive points. A point
// following a non-positive value has no defined return and is skipped.
func monthlyReturns(points []EvolutionPoint) []MonthlyReturn {
	out := make([]MonthlyReturn, 0, len(points))
	for i := 1; i < len(points); i++ {
		r, ok := formulas.SimpleReturn(points[i-1].PortfolioValue, points[i].PortfolioValue)
		if !ok {
			continue
		}
		out = append(out, MonthlyReturn{Date: points[i].Date, Return: r})
	}
	return out
}

// allocationBy groups held value under key(ticker), falling back to
// OtherBucket. Percentages are fractions of holdingsValue.
func allocationBy(holdings []accounting.Holding, holdingsValue float64, key func(string) string) []AllocationBucket {
	out := make([]AllocationBucket, 0)
	if holdingsValue <= 0 {
		return out
	}

	values := make(map[string]float64)
	for _, h := range holdings {
		if h.CurrentValue <= 0 {
			continue
		}
		name := key(h.Ticker)
		if name == "" {
			name = OtherBucket
		}
		values[name] += h.CurrentValue
	}

	for name, value := range values {
		out = append(out, AllocationBucket{
			Name:       name,
			Value:      value,
			Percentage: value / holdingsValue,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// sanitize replaces non-finite numbers so the snapshot can be stored
func sanitize(s *Snapshot) {
	s.CurrentValue = formulas.SanitizeValue(s.CurrentValue)
	s.CashBalance = formulas.SanitizeValue(s.CashBalance)
	s.TotalInvested = formulas.SanitizeValue(s.TotalInvested)
	s.TotalWithdrawn = formulas.SanitizeValue(s.TotalWithdrawn)
	s.TotalDividends = formulas.SanitizeValue(s.TotalDividends)
	s.TotalReturn = formulas.Sanitize(s.TotalReturn)
	s.AnnualizedReturn = formulas.Sanitize(s.AnnualizedReturn)
	s.Volatility = formulas.Sanitize(s.Volatility)
	s.SharpeRatio = formulas.Sanitize(s.SharpeRatio)
	s.MaxDrawdown = formulas.Sanitize(s.MaxDrawdown)

	for i := range s.Holdings {
		h := &s.Holdings[i]
		h.CurrentValue = formulas.SanitizeValue(h.CurrentValue)
		h.UnrealizedReturn = formulas.SanitizeValue(h.UnrealizedReturn)
		h.UnrealizedReturnPct = formulas.SanitizeValue(h.UnrealizedReturnPct)
		h.DividendAdjustedReturnPct = formulas.SanitizeValue(h.DividendAdjustedReturnPct)
		h.ActualAllocation = formulas.SanitizeValue(h.ActualAllocation)
	}
	for i := range s.MonthlyReturns {
		s.MonthlyReturns[i].Return = formulas.SanitizeValue(s.MonthlyReturns[i].Return)
	}
	for i := range s.Evolution {
		s.Evolution[i].PortfolioValue = formulas.SanitizeValue(s.Evolution[i].PortfolioValue)
	}
}

func unionTickers(held []string, targets map[string]float64) []string {
	seen := make(map[string]bool, len(held)+len(targets))
	out := make([]string, 0, len(held)+len(targets))
	for _, ticker := range held {
		if !seen[ticker] {
			seen[ticker] = true
			out = append(out, ticker)
		}
	}
	for ticker := range targets {
		if !seen[ticker] {
			seen[ticker] = true
			out = append(out, ticker)
		}
	}
	sort.Strings(out)
	return out
}

func firstDate(txs []domain.Transaction) time.Time {
	var first time.Time
	for _, tx := range txs {
		if !tx.Status.IsSettled() {
			continue
		}
		if first.IsZero() || tx.Date.Before(first) {
			first = tx.Date
		}
	}
	return first
}
