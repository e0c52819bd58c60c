package suggestions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/carteira/internal/database"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DecisionRepository handles rebalance_decisions in portfolio.db
type DecisionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(portfolioDB *sql.DB, log zerolog.Logger) *DecisionRepository {
	return &DecisionRepository{
		db:  portfolioDB,
		log: log.With().Str("repo", "rebalance_decision").Logger(),
	}
}

// CreateBatch stores decisions atomically, assigning missing IDs
func (r *DecisionRepository) CreateBatch(ctx context.Context, decisions []RebalanceDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rebalance_decisions (
				id, portfolio_id, ticker, actual_allocation, target_allocation, deviation,
				needs_rebalancing, action, quantity, profitability, reason, decided_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare decision insert: %w", err)
		}
		defer stmt.Close()

		for i := range decisions {
			d := &decisions[i]
			if d.ID == "" {
				d.ID = uuid.New().String()
			}
			var profitability interface{}
			if d.Profitability != nil {
				profitability = *d.Profitability
			}
			needs := 0
			if d.NeedsRebalancing {
				needs = 1
			}
			if _, err := stmt.ExecContext(ctx,
				d.ID, d.PortfolioID, d.Ticker, d.ActualAllocation, d.TargetAllocation, d.Deviation,
				needs, string(d.Action), d.Quantity, profitability, d.Reason, d.DecidedAt.Unix(),
			); err != nil {
				return fmt.Errorf("failed to insert decision for %s: %w", d.Ticker, err)
			}
		}
		return nil
	})
}

// ListByPortfolio returns the newest decisions first. limit <= 0 means no limit.
func (r *DecisionRepository) ListByPortfolio(ctx context.Context, portfolioID string, limit int) ([]RebalanceDecision, error) {
	query := `SELECT id, portfolio_id, ticker, actual_allocation, target_allocation, deviation,
			needs_rebalancing, action, quantity, profitability, reason, decided_at
		FROM rebalance_decisions WHERE portfolio_id = ?
		ORDER BY decided_at DESC, ticker ASC`
	args := []interface{}{portfolioID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	decisions := make([]RebalanceDecision, 0)
	for rows.Next() {
		var d RebalanceDecision
		var action string
		var needs int
		var profitability sql.NullFloat64
		var decidedAt int64
		if err := rows.Scan(&d.ID, &d.PortfolioID, &d.Ticker, &d.ActualAllocation, &d.TargetAllocation,
			&d.Deviation, &needs, &action, &d.Quantity, &profitability, &d.Reason, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Action = Action(action)
		d.NeedsRebalancing = needs != 0
		if profitability.Valid {
			p := profitability.Float64
			d.Profitability = &p
		}
		d.DecidedAt = time.Unix(decidedAt, 0).UTC()
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
