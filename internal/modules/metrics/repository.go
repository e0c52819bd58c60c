package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/carteira/pkg/formulas"
	"github.com/rs/zerolog"
)

// SnapshotRepository handles portfolio_metrics_snapshots in portfolio.db
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(portfolioDB *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  portfolioDB,
		log: log.With().Str("repo", "metrics_snapshot").Logger(),
	}
}

// Upsert writes the single snapshot row of s.PortfolioID. Non-finite
// numbers are stored as NULL.
func (r *SnapshotRepository) Upsert(ctx context.Context, s *Snapshot) error {
	blobs := make([]string, 0, 6)
	for _, v := range []interface{}{s.Holdings, s.MonthlyReturns, s.Evolution, s.SectorAllocation, s.IndustryAllocation, s.DataGaps} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot of %s: %w", s.PortfolioID, err)
		}
		blobs = append(blobs, string(data))
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO portfolio_metrics_snapshots (
			portfolio_id, current_value, cash_balance, total_invested, total_withdrawn, total_dividends,
			total_return, annualized_return, volatility, sharpe_ratio, max_drawdown,
			holdings_json, monthly_returns_json, evolution_json, sector_allocation_json,
			industry_allocation_json, data_gaps_json, is_stale, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (portfolio_id) DO UPDATE SET
			current_value = excluded.current_value,
			cash_balance = excluded.cash_balance,
			total_invested = excluded.total_invested,
			total_withdrawn = excluded.total_withdrawn,
			total_dividends = excluded.total_dividends,
			total_return = excluded.total_return,
			annualized_return = excluded.annualized_return,
			volatility = excluded.volatility,
			sharpe_ratio = excluded.sharpe_ratio,
			max_drawdown = excluded.max_drawdown,
			holdings_json = excluded.holdings_json,
			monthly_returns_json = excluded.monthly_returns_json,
			evolution_json = excluded.evolution_json,
			sector_allocation_json = excluded.sector_allocation_json,
			industry_allocation_json = excluded.industry_allocation_json,
			data_gaps_json = excluded.data_gaps_json,
			is_stale = 0,
			computed_at = excluded.computed_at`,
		s.PortfolioID,
		finite(&s.CurrentValue), finite(&s.CashBalance), finite(&s.TotalInvested),
		finite(&s.TotalWithdrawn), finite(&s.TotalDividends),
		finite(s.TotalReturn), finite(s.AnnualizedReturn), finite(s.Volatility),
		finite(s.SharpeRatio), finite(s.MaxDrawdown),
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4], blobs[5],
		s.ComputedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot of %s: %w", s.PortfolioID, err)
	}
	return nil
}

// Get returns the snapshot of portfolioID or nil if none was computed
func (r *SnapshotRepository) Get(ctx context.Context, portfolioID string) (*Snapshot, error) {
	var s Snapshot
	var current, cash, invested, withdrawn, dividends sql.NullFloat64
	var totalReturn, annualized, volatility, sharpe, drawdown sql.NullFloat64
	var holdings, monthly, evolution, sectors, industries, gaps string
	var stale int
	var computedAt int64

	err := r.db.QueryRowContext(ctx, `
		SELECT portfolio_id, current_value, cash_balance, total_invested, total_withdrawn, total_dividends,
			total_return, annualized_return, volatility, sharpe_ratio, max_drawdown,
			holdings_json, monthly_returns_json, evolution_json, sector_allocation_json,
			industry_allocation_json, data_gaps_json, is_stale, computed_at
		FROM portfolio_metrics_snapshots WHERE portfolio_id = ?`, portfolioID,
	).Scan(&s.PortfolioID, &current, &cash, &invested, &withdrawn, &dividends,
		&totalReturn, &annualized, &volatility, &sharpe, &drawdown,
		&holdings, &monthly, &evolution, &sectors, &industries, &gaps, &stale, &computedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot of %s: %w", portfolioID, err)
	}

	s.CurrentValue = current.Float64
	s.CashBalance = cash.Float64
	s.TotalInvested = invested.Float64
	s.TotalWithdrawn = withdrawn.Float64
	s.TotalDividends = dividends.Float64
	s.TotalReturn = nullable(totalReturn)
	s.AnnualizedReturn = nullable(annualized)
	s.Volatility = nullable(volatility)
	s.SharpeRatio = nullable(sharpe)
	s.MaxDrawdown = nullable(drawdown)
	s.IsStale = stale != 0
	s.ComputedAt = time.Unix(computedAt, 0).UTC()

	decode := []struct {
		raw string
		out interface{}
	}{
		{holdings, &s.Holdings},
		{monthly, &s.MonthlyReturns},
		{evolution, &s.Evolution},
		{sectors, &s.SectorAllocation},
		{industries, &s.IndustryAllocation},
		{gaps, &s.DataGaps},
	}
	for _, d := range decode {
		if err := json.Unmarshal([]byte(d.raw), d.out); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot of %s: %w", portfolioID, err)
		}
	}
	return &s, nil
}

// MarkStale flags the snapshot of portfolioID for recomputation
func (r *SnapshotRepository) MarkStale(ctx context.Context, portfolioID string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE portfolio_metrics_snapshots SET is_stale = 1 WHERE portfolio_id = ?", portfolioID,
	); err != nil {
		return fmt.Errorf("failed to mark snapshot of %s stale: %w", portfolioID, err)
	}
	return nil
}

// ListStale returns the portfolio IDs whose snapshot is stale
func (r *SnapshotRepository) ListStale(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT portfolio_id FROM portfolio_metrics_snapshots WHERE is_stale = 1 ORDER BY portfolio_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list stale snapshots: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stale snapshot: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func finite(v *float64) interface{} {
	if s := formulas.Sanitize(v); s != nil {
		return *s
	}
	return nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
