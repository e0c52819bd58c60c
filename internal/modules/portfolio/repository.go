// Package portfolio manages investor portfolios, their target allocations
// and the derived holdings report.
package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/carteira/internal/database"
	"github.com/aristath/carteira/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles portfolios and portfolio_config_assets in portfolio.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewRepository creates a new portfolio repository
func NewRepository(portfolioDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  portfolioDB,
		log: log.With().Str("repo", "portfolio").Logger(),
		now: time.Now,
	}
}

const portfolioColumns = "id, owner_id, name, monthly_contribution, rebalance_frequency, created_at, updated_at"

// Create inserts p, assigning an ID when empty
func (r *Repository) Create(ctx context.Context, p *domain.Portfolio) error {
	now := r.now().UTC()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO portfolios ("+portfolioColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.OwnerID, p.Name, p.MonthlyContribution, string(p.RebalanceFrequency),
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// GetByID returns the portfolio or nil if it does not exist
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)
	p, err := scanPortfolio(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}
	return p, nil
}

// ListByOwner returns the portfolios of ownerID ordered by name
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Portfolio, error) {
	return r.list(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE owner_id = ? ORDER BY name, id", ownerID)
}

// ListAll returns every portfolio
func (r *Repository) ListAll(ctx context.Context) ([]domain.Portfolio, error) {
	return r.list(ctx, "SELECT "+portfolioColumns+" FROM portfolios ORDER BY id")
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]domain.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}

// Update rewrites the mutable columns of p
func (r *Repository) Update(ctx context.Context, p *domain.Portfolio) error {
	p.UpdatedAt = r.now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE portfolios SET name = ?, monthly_contribution = ?, rebalance_frequency = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.MonthlyContribution, string(p.RebalanceFrequency), p.UpdatedAt.Unix(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %s: %w", p.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewNotFound("portfolio", p.ID)
	}
	return nil
}

const assetColumns = "id, portfolio_id, ticker, target_allocation, is_active, added_at, removed_at"

// ListTargets returns the config assets of portfolioID ordered by ticker.
// Soft-deleted rows are included only when includeRemoved is set.
func (r *Repository) ListTargets(ctx context.Context, portfolioID string, includeRemoved bool) ([]domain.PortfolioConfigAsset, error) {
	query := "SELECT " + assetColumns + " FROM portfolio_config_assets WHERE portfolio_id = ?"
	if !includeRemoved {
		query += " AND is_active = 1"
	}
	query += " ORDER BY ticker"

	rows, err := r.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	assets := make([]domain.PortfolioConfigAsset, 0)
	for rows.Next() {
		var a domain.PortfolioConfigAsset
		var active int
		var addedAt int64
		var removedAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.PortfolioID, &a.Ticker, &a.TargetAllocation, &active, &addedAt, &removedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		a.IsActive = active != 0
		a.AddedAt = time.Unix(addedAt, 0).UTC()
		if removedAt.Valid {
			t := time.Unix(removedAt.Int64, 0).UTC()
			a.RemovedAt = &t
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	return assets, nil
}

// ReplaceTargets makes targets the active allocation of portfolioID in one
// transaction. Every active row is first soft-deleted; the upsert then
// reactivates the tickers present in targets. Rows that were active keep
// their added_at.
func (r *Repository) ReplaceTargets(ctx context.Context, portfolioID string, targets map[string]float64) error {
	now := r.now().UTC().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE portfolio_config_assets SET is_active = 0, removed_at = ?
			 WHERE portfolio_id = ? AND is_active = 1`,
			now, portfolioID,
		)
		if err != nil {
			return fmt.Errorf("failed to deactivate targets: %w", err)
		}

		for ticker, target := range targets {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO portfolio_config_assets (`+assetColumns+`)
				 VALUES (?, ?, ?, ?, 1, ?, NULL)
				 ON CONFLICT (portfolio_id, ticker) DO UPDATE SET
				   target_allocation = excluded.target_allocation,
				   is_active = 1,
				   removed_at = NULL,
				   added_at = CASE WHEN portfolio_config_assets.removed_at = ?
				                   THEN portfolio_config_assets.added_at ELSE excluded.added_at END`,
				uuid.New().String(), portfolioID, ticker, target, now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert target %s: %w", ticker, err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var freq string
	var createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.MonthlyContribution, &freq, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.RebalanceFrequency = domain.RebalanceFrequency(freq)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}
