package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/aristath/carteira/internal/database"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/utils"
	"github.com/rs/zerolog"
)

const eventModule = "ledger"

// EventEmitter publishes typed events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// ManualInput is a user-entered transaction. It is stored as EXECUTED.
type ManualInput struct {
	Date     time.Time              `json:"date"`
	Type     domain.TransactionType `json:"type"`
	Ticker   string                 `json:"ticker"`
	Notes    string                 `json:"notes"`
	Amount   float64                `json:"amount"`
	Price    float64                `json:"price"`
	Quantity float64                `json:"quantity"`
}

// Patch holds the editable fields of a transaction. Nil fields are unchanged.
type Patch struct {
	Date     *time.Time              `json:"date"`
	Type     *domain.TransactionType `json:"type"`
	Ticker   *string                 `json:"ticker"`
	Notes    *string                 `json:"notes"`
	Amount   *float64                `json:"amount"`
	Price    *float64                `json:"price"`
	Quantity *float64                `json:"quantity"`
}

// Service is the transaction lifecycle manager.
//
//	PENDING --confirm--> CONFIRMED --revert--> PENDING
//	PENDING --reject---> REJECTED  --revert--> PENDING
//
// EXECUTED rows come from manual entry and never transition. Every change to
// the settled set is re-validated inside the database transaction that makes
// it, so a failure leaves the ledger untouched.
type Service struct {
	ledgerDB    *sql.DB
	repo        *TransactionRepository
	invalidator domain.MetricsInvalidator
	emitter     EventEmitter
	clock       domain.Clock
	log         zerolog.Logger
}

// NewService creates the lifecycle manager
func NewService(
	ledgerDB *sql.DB,
	repo *TransactionRepository,
	invalidator domain.MetricsInvalidator,
	emitter EventEmitter,
	clock domain.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		ledgerDB:    ledgerDB,
		repo:        repo,
		invalidator: invalidator,
		emitter:     emitter,
		clock:       clock,
		log:         log.With().Str("service", "transaction_lifecycle").Logger(),
	}
}

// Get returns a transaction of portfolioID. Rows of other portfolios are
// reported as not found.
func (s *Service) Get(ctx context.Context, portfolioID, id string) (*domain.Transaction, error) {
	return s.load(ctx, s.repo, portfolioID, id)
}

// List returns the transactions of portfolioID matching filter
func (s *Service) List(ctx context.Context, portfolioID string, filter Filter) ([]domain.Transaction, error) {
	filter.PortfolioID = portfolioID
	return s.repo.List(ctx, filter)
}

// Confirm commits a PENDING row to the ledger
func (s *Service) Confirm(ctx context.Context, portfolioID, id string) (*domain.Transaction, error) {
	return s.transition(ctx, portfolioID, id, domain.StatusConfirmed, events.TransactionConfirmed,
		func(tx *domain.Transaction) error {
			if tx.Status != domain.StatusPending {
				return domain.NewValidation("status", "cannot confirm a %s transaction", tx.Status)
			}
			return nil
		})
}

// Reject discards a PENDING row
func (s *Service) Reject(ctx context.Context, portfolioID, id string) (*domain.Transaction, error) {
	return s.transition(ctx, portfolioID, id, domain.StatusRejected, events.TransactionRejected,
		func(tx *domain.Transaction) error {
			if tx.Status != domain.StatusPending {
				return domain.NewValidation("status", "cannot reject a %s transaction", tx.Status)
			}
			return nil
		})
}

// Revert moves a CONFIRMED or REJECTED row back to PENDING for correction.
// Reverting a confirmed row is refused when the remaining ledger would
// overdraw cash or sell shares it no longer holds.
func (s *Service) Revert(ctx context.Context, portfolioID, id string) (*domain.Transaction, error) {
	return s.transition(ctx, portfolioID, id, domain.StatusPending, events.TransactionReverted,
		func(tx *domain.Transaction) error {
			if tx.Status != domain.StatusConfirmed && tx.Status != domain.StatusRejected {
				return domain.NewValidation("status", "cannot revert a %s transaction", tx.Status)
			}
			return nil
		})
}

func (s *Service) transition(
	ctx context.Context,
	portfolioID, id string,
	to domain.TransactionStatus,
	eventType events.EventType,
	allowed func(*domain.Transaction) error,
) (*domain.Transaction, error) {
	var result *domain.Transaction

	err := s.mutate(ctx, portfolioID, func(repo *TransactionRepository) (float64, error) {
		tx, err := s.load(ctx, repo, portfolioID, id)
		if err != nil {
			return 0, err
		}
		if err := allowed(tx); err != nil {
			return 0, err
		}
		if err := repo.UpdateStatus(ctx, id, to); err != nil {
			return 0, err
		}
		tx.Status = to
		result = tx
		return tx.Amount, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("transaction_id", id).
		Str("status", string(to)).
		Msg("Transaction status changed")

	s.afterMutation(ctx, portfolioID, eventType, result)
	return result, nil
}

// BatchConfirm confirms every id atomically. One invalid row, or a ledger
// that would go negative, leaves all of them PENDING.
func (s *Service) BatchConfirm(ctx context.Context, portfolioID string, ids []string) ([]domain.Transaction, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidation("ids", "at least one transaction id is required")
	}

	confirmed := make([]domain.Transaction, 0, len(ids))
	err := s.mutate(ctx, portfolioID, func(repo *TransactionRepository) (float64, error) {
		attempted := 0.0
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true

			tx, err := s.load(ctx, repo, portfolioID, id)
			if err != nil {
				return 0, err
			}
			if tx.Status != domain.StatusPending {
				return 0, domain.NewValidation("status", "transaction %s is %s, not PENDING", id, tx.Status)
			}
			if err := repo.UpdateStatus(ctx, id, domain.StatusConfirmed); err != nil {
				return 0, err
			}
			tx.Status = domain.StatusConfirmed
			confirmed = append(confirmed, *tx)
			if tx.CashDelta() < 0 {
				attempted += tx.Amount
			}
		}
		return attempted, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Int("count", len(confirmed)).
		Msg("Batch confirmed transactions")

	for i := range confirmed {
		s.emit(events.TransactionConfirmed, &confirmed[i])
	}
	s.invalidate(ctx, portfolioID)
	return confirmed, nil
}

// CreateManual records a transaction entered by the investor. Manual rows
// bypass the suggestion flow and are stored as EXECUTED.
func (s *Service) CreateManual(ctx context.Context, portfolioID string, input ManualInput) (*domain.Transaction, error) {
	tx := &domain.Transaction{
		PortfolioID: portfolioID,
		Date:        input.Date,
		Type:        input.Type,
		Ticker:      input.Ticker,
		Amount:      input.Amount,
		Price:       input.Price,
		Quantity:    input.Quantity,
		Notes:       input.Notes,
		Status:      domain.StatusExecuted,
	}
	if tx.Date.IsZero() {
		tx.Date = utils.Day(s.clock.Now())
	}
	if err := s.validate(tx); err != nil {
		return nil, err
	}

	err := s.mutate(ctx, portfolioID, func(repo *TransactionRepository) (float64, error) {
		return tx.Amount, repo.Create(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("transaction_id", tx.ID).
		Str("type", string(tx.Type)).
		Float64("amount", tx.Amount).
		Msg("Manual transaction recorded")

	s.afterMutation(ctx, portfolioID, events.TransactionCreated, tx)
	return tx, nil
}

// Update edits a PENDING, EXECUTED or manually confirmed row. Confirmed
// auto-suggested rows must be reverted first.
func (s *Service) Update(ctx context.Context, portfolioID, id string, patch Patch) (*domain.Transaction, error) {
	var result *domain.Transaction

	err := s.mutate(ctx, portfolioID, func(repo *TransactionRepository) (float64, error) {
		tx, err := s.load(ctx, repo, portfolioID, id)
		if err != nil {
			return 0, err
		}
		if err := editable(tx); err != nil {
			return 0, err
		}

		applyPatch(tx, patch)
		if err := s.validate(tx); err != nil {
			return 0, err
		}
		if err := repo.Update(ctx, tx); err != nil {
			return 0, err
		}
		result = tx
		return tx.Amount, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, portfolioID, events.TransactionUpdated, result)
	return result, nil
}

// Delete removes a row under the same rules as Update
func (s *Service) Delete(ctx context.Context, portfolioID, id string) error {
	var deleted *domain.Transaction

	err := s.mutate(ctx, portfolioID, func(repo *TransactionRepository) (float64, error) {
		tx, err := s.load(ctx, repo, portfolioID, id)
		if err != nil {
			return 0, err
		}
		if err := editable(tx); err != nil {
			return 0, err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return 0, err
		}
		deleted = tx
		return tx.Amount, nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("transaction_id", id).
		Msg("Transaction deleted")

	s.afterMutation(ctx, portfolioID, events.TransactionDeleted, deleted)
	return nil
}

// RecalculateCashBalances rewrites the cached before/after balance of every
// settled row. It is an audit operation with O(n) writes.
func (s *Service) RecalculateCashBalances(ctx context.Context, portfolioID string) (int, error) {
	timer := utils.NewTimer("recalculate_cash_balances", s.log)
	defer timer.Stop()

	var count int
	err := database.WithTransaction(s.ledgerDB, func(sqlTx *sql.Tx) error {
		repo := s.repo.WithTx(sqlTx)
		settled, err := repo.ListSettled(ctx, portfolioID)
		if err != nil {
			return err
		}
		balances := accounting.RunningBalances(settled)
		count = len(balances)
		return repo.UpdateCashBalances(ctx, portfolioID, balances)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate cash balances: %w", err)
	}
	return count, nil
}

// Timeline returns the settled rows in cash order with freshly computed
// before/after balances. Nothing is written.
func (s *Service) Timeline(ctx context.Context, portfolioID string) ([]domain.Transaction, error) {
	settled, err := s.repo.ListSettled(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	ordered := accounting.SortForCash(settled)
	balances := accounting.RunningBalances(ordered)
	for i := range ordered {
		before, after := balances[i].Before, balances[i].After
		ordered[i].CashBalanceBefore = &before
		ordered[i].CashBalanceAfter = &after
	}
	return ordered, nil
}

// CashBalance is the hot-path balance query: reads only
func (s *Service) CashBalance(ctx context.Context, portfolioID string) (float64, error) {
	settled, err := s.repo.ListSettled(ctx, portfolioID)
	if err != nil {
		return 0, err
	}
	return accounting.CashBalance(settled), nil
}

// mutate runs op inside a database transaction and checks that the settled
// ledger did not get worse. op returns the amount it attempted to move,
// reported on InsufficientCashError.
func (s *Service) mutate(ctx context.Context, portfolioID string, op func(repo *TransactionRepository) (float64, error)) error {
	return database.WithTransaction(s.ledgerDB, func(sqlTx *sql.Tx) error {
		repo := s.repo.WithTx(sqlTx)

		before, err := repo.ListSettled(ctx, portfolioID)
		if err != nil {
			return err
		}

		attempted, err := op(repo)
		if err != nil {
			return err
		}

		after, err := repo.ListSettled(ctx, portfolioID)
		if err != nil {
			return err
		}
		return checkLedger(before, after, attempted)
	})
}

// checkLedger rejects a change that introduces a negative day-end cash
// balance, deepens an existing one or leaves the final balance lower and
// negative. Problems already present before the change are otherwise
// tolerated so legacy ledgers stay editable.
func checkLedger(before, after []domain.Transaction, attempted float64) error {
	minBefore, finalBefore := accounting.MinDayEndBalance(before)
	minAfter, finalAfter := accounting.MinDayEndBalance(after)

	shortfall := 0.0
	if accounting.IsNegative(minAfter) && accounting.IsNegative(minAfter-minBefore) {
		shortfall = -minAfter
	}
	if accounting.IsNegative(finalAfter) && accounting.IsNegative(finalAfter-finalBefore) {
		shortfall = math.Max(shortfall, -finalAfter)
	}
	if shortfall > 0 {
		return &domain.InsufficientCashError{
			CurrentBalance:  round2(finalBefore),
			AttemptedAmount: round2(attempted),
			Shortfall:       round2(shortfall),
		}
	}

	known := make(map[string]bool)
	for _, inc := range accounting.Replay(before).Inconsistencies() {
		known[inc.TransactionID] = true
	}
	for _, inc := range accounting.Replay(after).Inconsistencies() {
		if !known[inc.TransactionID] {
			return domain.NewValidation("quantity",
				"selling %.4f %s on %s exceeds the %.4f shares held",
				inc.Sold, inc.Ticker, inc.Date.Format(utils.DateLayout), inc.Held)
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, repo *TransactionRepository, portfolioID, id string) (*domain.Transaction, error) {
	tx, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.PortfolioID != portfolioID {
		return nil, domain.NewNotFound("transaction", id)
	}
	return tx, nil
}

func (s *Service) validate(tx *domain.Transaction) error {
	if !tx.Type.Valid() {
		return domain.NewValidation("type", "unknown transaction type %q", tx.Type)
	}
	if tx.Amount <= 0 || math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		return domain.NewValidation("amount", "must be a positive number")
	}
	if tx.Date.After(utils.Day(s.clock.Now())) {
		return domain.NewValidation("date", "cannot be in the future")
	}

	tx.Ticker = utils.NormalizeTicker(tx.Ticker)
	if !tx.Type.RequiresTicker() {
		if tx.Ticker != "" {
			return domain.NewValidation("ticker", "%s transactions do not reference a security", tx.Type)
		}
		tx.Price, tx.Quantity = 0, 0
		return nil
	}
	if tx.Ticker == "" {
		return domain.NewValidation("ticker", "is required for %s transactions", tx.Type)
	}
	if tx.Type == domain.TypeDividend {
		return nil
	}
	if tx.Quantity <= 0 {
		return domain.NewValidation("quantity", "must be positive for %s transactions", tx.Type)
	}
	if tx.Price <= 0 {
		tx.Price = tx.Amount / tx.Quantity
	}
	return nil
}

func editable(tx *domain.Transaction) error {
	switch {
	case tx.Status == domain.StatusRejected:
		return domain.NewValidation("status", "rejected transactions must be reverted before editing")
	case tx.Status == domain.StatusConfirmed && tx.IsAutoSuggested:
		return domain.NewValidation("status", "confirmed suggestions must be reverted before editing")
	}
	return nil
}

func applyPatch(tx *domain.Transaction, p Patch) {
	if p.Date != nil {
		tx.Date = utils.Day(*p.Date)
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Ticker != nil {
		tx.Ticker = *p.Ticker
	}
	if p.Notes != nil {
		tx.Notes = *p.Notes
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Price != nil {
		tx.Price = *p.Price
	}
	if p.Quantity != nil {
		tx.Quantity = *p.Quantity
	}
}

func (s *Service) afterMutation(ctx context.Context, portfolioID string, eventType events.EventType, tx *domain.Transaction) {
	s.invalidate(ctx, portfolioID)
	s.emit(eventType, tx)
}

// invalidate marks the metrics snapshot stale. The ledger change is already
// committed, so a failure here is logged and not returned.
func (s *Service) invalidate(ctx context.Context, portfolioID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, portfolioID); err != nil {
		s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to invalidate metrics snapshot")
	}
}

func (s *Service) emit(eventType events.EventType, tx *domain.Transaction) {
	if s.emitter == nil || tx == nil {
		return
	}
	s.emitter.Emit(eventModule, &events.TransactionEventData{
		Type:            eventType,
		TransactionID:   tx.ID,
		PortfolioID:     tx.PortfolioID,
		TransactionType: string(tx.Type),
		Ticker:          tx.Ticker,
		Status:          string(tx.Status),
		Amount:          tx.Amount,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
