// Package marketdata implements the quote, sector, dividend and fair value
// collaborators on top of history.db, the client data cache and brapi.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/aristath/carteira/internal/database"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/utils"
	"github.com/rs/zerolog"
)

// PriceRepository handles daily closes in history.db
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(historyDB *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  historyDB,
		log: log.With().Str("repo", "daily_prices").Logger(),
	}
}

// UpsertClose records the close of ticker on date
func (r *PriceRepository) UpsertClose(ctx context.Context, ticker string, date time.Time, closePrice float64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO daily_prices (ticker, date, close) VALUES (?, ?, ?)
		 ON CONFLICT (ticker, date) DO UPDATE SET close = excluded.close`,
		utils.NormalizeTicker(ticker), utils.DateToUnix(date), closePrice,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert close for %s: %w", ticker, err)
	}
	return nil
}

// ClosesAsOf returns the latest close on or before date for each ticker.
// Tickers without any such close are absent.
func (r *PriceRepository) ClosesAsOf(ctx context.Context, tickers []string, date time.Time) (map[string]float64, error) {
	return r.closesUpTo(ctx, tickers, utils.DateToUnix(date))
}

// LatestCloses returns the most recent close of each ticker
func (r *PriceRepository) LatestCloses(ctx context.Context, tickers []string) (map[string]float64, error) {
	return r.closesUpTo(ctx, tickers, math.MaxInt64)
}

func (r *PriceRepository) closesUpTo(ctx context.Context, tickers []string, cutoff int64) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	for _, ticker := range tickers {
		var closePrice float64
		err := r.db.QueryRowContext(ctx,
			`SELECT close FROM daily_prices WHERE ticker = ? AND date <= ?
			 ORDER BY date DESC LIMIT 1`,
			ticker, cutoff,
		).Scan(&closePrice)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get close of %s: %w", ticker, err)
		}
		out[ticker] = closePrice
	}
	return out, nil
}

// CompanyRepository handles company_profiles in history.db
type CompanyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCompanyRepository creates a new company profile repository
func NewCompanyRepository(historyDB *sql.DB, log zerolog.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:  historyDB,
		log: log.With().Str("repo", "company_profiles").Logger(),
	}
}

// Upsert stores the classification of ticker
func (r *CompanyRepository) Upsert(ctx context.Context, ticker, name string, info domain.SectorIndustry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO company_profiles (ticker, name, sector, industry, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (ticker) DO UPDATE SET
		   name = COALESCE(excluded.name, company_profiles.name),
		   sector = excluded.sector,
		   industry = excluded.industry,
		   updated_at = excluded.updated_at`,
		utils.NormalizeTicker(ticker), nullString(name), nullString(info.Sector), nullString(info.Industry), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company profile %s: %w", ticker, err)
	}
	return nil
}

// GetMany returns the classification of the known tickers
func (r *CompanyRepository) GetMany(ctx context.Context, tickers []string) (map[string]domain.SectorIndustry, error) {
	out := make(map[string]domain.SectorIndustry, len(tickers))
	for _, ticker := range tickers {
		var sector, industry sql.NullString
		err := r.db.QueryRowContext(ctx,
			"SELECT sector, industry FROM company_profiles WHERE ticker = ?", ticker,
		).Scan(&sector, &industry)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get company profile %s: %w", ticker, err)
		}
		out[ticker] = domain.SectorIndustry{Sector: sector.String, Industry: industry.String}
	}
	return out, nil
}

// DividendEventRepository handles dividend_events in history.db
type DividendEventRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDividendEventRepository creates a new dividend event repository
func NewDividendEventRepository(historyDB *sql.DB, log zerolog.Logger) *DividendEventRepository {
	return &DividendEventRepository{
		db:  historyDB,
		log: log.With().Str("repo", "dividend_events").Logger(),
	}
}

// Replace swaps the stored events of ticker for events
func (r *DividendEventRepository) Replace(ctx context.Context, ticker string, events []domain.DividendEvent, fetchedAt time.Time) error {
	ticker = utils.NormalizeTicker(ticker)
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM dividend_events WHERE ticker = ?", ticker); err != nil {
			return fmt.Errorf("failed to clear dividend events of %s: %w", ticker, err)
		}
		for _, e := range events {
			_, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO dividend_events (ticker, ex_date, payment_date, amount_per_share, fetched_at)
				 VALUES (?, ?, ?, ?, ?)`,
				ticker, utils.DateToUnix(e.ExDate), utils.DateToUnix(e.PaymentDate), e.AmountPerShare, fetchedAt.Unix(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert dividend event of %s: %w", ticker, err)
			}
		}
		return nil
	})
}

// ListByTicker returns the stored events of ticker ordered by ex-date
func (r *DividendEventRepository) ListByTicker(ctx context.Context, ticker string) ([]domain.DividendEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ex_date, payment_date, amount_per_share FROM dividend_events
		 WHERE ticker = ? ORDER BY ex_date, payment_date`,
		ticker,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dividend events of %s: %w", ticker, err)
	}
	defer rows.Close()

	events := make([]domain.DividendEvent, 0)
	for rows.Next() {
		var exDate, paymentDate int64
		e := domain.DividendEvent{Ticker: ticker}
		if err := rows.Scan(&exDate, &paymentDate, &e.AmountPerShare); err != nil {
			return nil, fmt.Errorf("failed to scan dividend event: %w", err)
		}
		e.ExDate = utils.UnixToDate(exDate)
		e.PaymentDate = utils.UnixToDate(paymentDate)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividend events: %w", err)
	}
	return events, nil
}

// FairValue is an externally computed intrinsic value estimate
type FairValue struct {
	ComputedAt time.Time `json:"computed_at"`
	Ticker     string    `json:"ticker"`
	Strategy   string    `json:"strategy"`
	Value      float64   `json:"fair_value"`
}

// FairValueRepository handles fair_values in history.db
type FairValueRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFairValueRepository creates a new fair value repository
func NewFairValueRepository(historyDB *sql.DB, log zerolog.Logger) *FairValueRepository {
	return &FairValueRepository{
		db:  historyDB,
		log: log.With().Str("repo", "fair_values").Logger(),
	}
}

// Upsert stores one strategy's estimate
func (r *FairValueRepository) Upsert(ctx context.Context, fv FairValue) error {
	if fv.ComputedAt.IsZero() {
		fv.ComputedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fair_values (ticker, strategy, fair_value, computed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (ticker, strategy) DO UPDATE SET
		   fair_value = excluded.fair_value, computed_at = excluded.computed_at`,
		utils.NormalizeTicker(fv.Ticker), fv.Strategy, fv.Value, fv.ComputedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fair value %s/%s: %w", fv.Ticker, fv.Strategy, err)
	}
	return nil
}

// ListByTickers returns the estimates of each ticker ordered by strategy
func (r *FairValueRepository) ListByTickers(ctx context.Context, tickers []string) (map[string][]FairValue, error) {
	out := make(map[string][]FairValue, len(tickers))
	for _, ticker := range tickers {
		rows, err := r.db.QueryContext(ctx,
			"SELECT strategy, fair_value, computed_at FROM fair_values WHERE ticker = ? ORDER BY strategy",
			ticker,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list fair values of %s: %w", ticker, err)
		}
		for rows.Next() {
			fv := FairValue{Ticker: ticker}
			var computedAt int64
			if err := rows.Scan(&fv.Strategy, &fv.Value, &computedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan fair value: %w", err)
			}
			fv.ComputedAt = time.Unix(computedAt, 0).UTC()
			out[ticker] = append(out[ticker], fv)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating fair values: %w", err)
		}
	}
	return out, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
