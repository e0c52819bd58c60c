// Package ledger owns the transaction ledger: its persistence and the
// lifecycle state machine that moves rows between PENDING, CONFIRMED,
// REJECTED and EXECUTED.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Filter selects transactions. Zero-valued fields are ignored.
type Filter struct {
	From          *time.Time
	To            *time.Time
	AutoSuggested *bool
	PortfolioID   string
	Ticker        string
	Statuses      []domain.TransactionStatus
	Types         []domain.TransactionType
}

// TransactionRepository handles transaction rows in ledger.db
type TransactionRepository struct {
	db  Querier
	log zerolog.Logger
	now func() time.Time
}

// transactionColumns must match scanTransaction
const transactionColumns = `id, portfolio_id, date, type, ticker, amount, price, quantity,
cash_balance_before, cash_balance_after, status, is_auto_suggested, notes, created_at, updated_at`

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  ledgerDB,
		log: log.With().Str("repo", "transaction").Logger(),
		now: time.Now,
	}
}

// WithTx returns a repository bound to tx. Use it inside database.WithTransaction
// so multi-row operations commit or roll back together.
func (r *TransactionRepository) WithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx, log: r.log, now: r.now}
}

// Create inserts a transaction. ID, CreatedAt and UpdatedAt are populated
// when empty and the ticker is upper-cased.
//
// Parameters:
//   - ctx: Context
//   - tx: Transaction to insert
//
// Returns:
//   - error: Error if the insert fails
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	now := r.now().UTC()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.Ticker = utils.NormalizeTicker(tx.Ticker)
	tx.Date = utils.Day(tx.Date)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.PortfolioID,
		utils.DateToUnix(tx.Date),
		string(tx.Type),
		nullString(tx.Ticker),
		tx.Amount,
		nullPositive(tx.Price, tx.Ticker),
		nullPositive(tx.Quantity, tx.Ticker),
		nullFloatPtr(tx.CashBalanceBefore),
		nullFloatPtr(tx.CashBalanceAfter),
		string(tx.Status),
		boolToInt(tx.IsAutoSuggested),
		nullString(tx.Notes),
		tx.CreatedAt.Unix(),
		tx.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	r.log.Debug().
		Str("id", tx.ID).
		Str("portfolio_id", tx.PortfolioID).
		Str("type", string(tx.Type)).
		Str("ticker", tx.Ticker).
		Float64("amount", tx.Amount).
		Str("status", string(tx.Status)).
		Msg("Transaction created")

	return nil
}

// GetByID returns the transaction or nil if it does not exist
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE id = ?"

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return tx, nil
}

// Update rewrites every mutable column of tx
func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	tx.Ticker = utils.NormalizeTicker(tx.Ticker)
	tx.Date = utils.Day(tx.Date)
	tx.UpdatedAt = r.now().UTC()

	query := `UPDATE transactions SET date = ?, type = ?, ticker = ?, amount = ?, price = ?,
		quantity = ?, status = ?, notes = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		utils.DateToUnix(tx.Date),
		string(tx.Type),
		nullString(tx.Ticker),
		tx.Amount,
		nullPositive(tx.Price, tx.Ticker),
		nullPositive(tx.Quantity, tx.Ticker),
		string(tx.Status),
		nullString(tx.Notes),
		tx.UpdatedAt.Unix(),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}
	return expectOneRow(result, tx.ID)
}

// UpdateStatus moves a transaction to status
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?",
		string(status), r.now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of transaction %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// Delete removes a transaction
func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// List returns transactions matching filter ordered by date, then id
func (r *TransactionRepository) List(ctx context.Context, filter Filter) ([]domain.Transaction, error) {
	var where []string
	var args []interface{}

	if filter.PortfolioID != "" {
		where = append(where, "portfolio_id = ?")
		args = append(args, filter.PortfolioID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if len(filter.Types) > 0 {
		where = append(where, "type IN ("+placeholders(len(filter.Types))+")")
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if filter.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, utils.NormalizeTicker(filter.Ticker))
	}
	if filter.From != nil {
		where = append(where, "date >= ?")
		args = append(args, utils.DateToUnix(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "date <= ?")
		args = append(args, utils.DateToUnix(*filter.To))
	}
	if filter.AutoSuggested != nil {
		where = append(where, "is_auto_suggested = ?")
		args = append(args, boolToInt(*filter.AutoSuggested))
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

// ListSettled returns the CONFIRMED and EXECUTED rows of a portfolio
func (r *TransactionRepository) ListSettled(ctx context.Context, portfolioID string) ([]domain.Transaction, error) {
	return r.List(ctx, Filter{
		PortfolioID: portfolioID,
		Statuses:    []domain.TransactionStatus{domain.StatusConfirmed, domain.StatusExecuted},
	})
}

// ListPendingAuto returns the auto-suggested PENDING rows of a portfolio
func (r *TransactionRepository) ListPendingAuto(ctx context.Context, portfolioID string) ([]domain.Transaction, error) {
	auto := true
	return r.List(ctx, Filter{
		PortfolioID:   portfolioID,
		Statuses:      []domain.TransactionStatus{domain.StatusPending},
		AutoSuggested: &auto,
	})
}

// LastSettledDate returns the latest date of a settled row of one of types,
// or nil if there is none
func (r *TransactionRepository) LastSettledDate(ctx context.Context, portfolioID string, types ...domain.TransactionType) (*time.Time, error) {
	query := `SELECT MAX(date) FROM transactions
		WHERE portfolio_id = ? AND status IN (?, ?)`
	args := []interface{}{portfolioID, string(domain.StatusConfirmed), string(domain.StatusExecuted)}
	if len(types) > 0 {
		query += " AND type IN (" + placeholders(len(types)) + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}

	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last settled date: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	d := utils.UnixToDate(last.Int64)
	return &d, nil
}

// DeleteStalePending removes auto-suggested PENDING rows dated before before.
// Returns the number of rows removed.
func (r *TransactionRepository) DeleteStalePending(ctx context.Context, portfolioID string, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions
		 WHERE portfolio_id = ? AND status = ? AND is_auto_suggested = 1 AND date < ?`,
		portfolioID, string(domain.StatusPending), utils.DateToUnix(before),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale pending transactions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if deleted > 0 {
		r.log.Info().
			Str("portfolio_id", portfolioID).
			Int64("deleted", deleted).
			Msg("Removed stale pending suggestions")
	}
	return deleted, nil
}

// UpdateCashBalances writes the cached before/after balances of the settled
// rows and clears them on every other row of the portfolio
func (r *TransactionRepository) UpdateCashBalances(ctx context.Context, portfolioID string, balances []accounting.RunningBalance) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET cash_balance_before = NULL, cash_balance_after = NULL
		 WHERE portfolio_id = ? AND status NOT IN (?, ?)`,
		portfolioID, string(domain.StatusConfirmed), string(domain.StatusExecuted),
	)
	if err != nil {
		return fmt.Errorf("failed to clear cash balances: %w", err)
	}

	for _, b := range balances {
		if _, err := r.db.ExecContext(ctx,
			"UPDATE transactions SET cash_balance_before = ?, cash_balance_after = ? WHERE id = ?",
			b.Before, b.After, b.TransactionID,
		); err != nil {
			return fmt.Errorf("failed to update cash balance of %s: %w", b.TransactionID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var date, createdAt, updatedAt int64
	var txType, status string
	var ticker, notes sql.NullString
	var price, quantity, before, after sql.NullFloat64
	var auto int

	err := row.Scan(&tx.ID, &tx.PortfolioID, &date, &txType, &ticker, &tx.Amount, &price, &quantity,
		&before, &after, &status, &auto, &notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	tx.Date = utils.UnixToDate(date)
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	tx.Ticker = ticker.String
	tx.Notes = notes.String
	tx.Price = price.Float64
	tx.Quantity = quantity.Float64
	tx.IsAutoSuggested = auto != 0
	tx.CreatedAt = time.Unix(createdAt, 0).UTC()
	tx.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if before.Valid {
		v := before.Float64
		tx.CashBalanceBefore = &v
	}
	if after.Valid {
		v := after.Float64
		tx.CashBalanceAfter = &v
	}

	return &tx, nil
}

func expectOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewNotFound("transaction", id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullPositive stores price/quantity as NULL on pure cash events
func nullPositive(v float64, ticker string) interface{} {
	if ticker == "" && v == 0 {
		return nil
	}
	return v
}

func nullFloatPtr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
