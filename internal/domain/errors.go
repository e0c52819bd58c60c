package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for errors.Is matching
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// CodeInsufficientCash is the stable error code for InsufficientCashError
const CodeInsufficientCash = "INSUFFICIENT_CASH"

// NotFoundError is returned when a portfolio or transaction is missing
// or not owned by the caller
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound builds a NotFoundError
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError is a terminal, user-correctable input or state error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidation builds a ValidationError
func NewValidation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientCashError carries enough detail for an actionable message
type InsufficientCashError struct {
	CurrentBalance  float64 `json:"current_balance"`
	AttemptedAmount float64 `json:"attempted_amount"`
	Shortfall       float64 `json:"shortfall"`
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("%s: balance %.2f, attempted %.2f, shortfall %.2f",
		CodeInsufficientCash, e.CurrentBalance, e.AttemptedAmount, e.Shortfall)
}

// Code returns CodeInsufficientCash
func (e *InsufficientCashError) Code() string {
	return CodeInsufficientCash
}

// LedgerInconsistency records a sell of more shares than were held.
// Replay clamps the position at zero.
type LedgerInconsistency struct {
	Date          time.Time `json:"date"`
	TransactionID string    `json:"transaction_id"`
	Ticker        string    `json:"ticker"`
	Held          float64   `json:"held"`
	Sold          float64   `json:"sold"`
}

// InconsistencyError groups the inconsistencies found during one replay
type InconsistencyError struct {
	Inconsistencies []LedgerInconsistency
}

func (e *InconsistencyError) Error() string {
	parts := make([]string, 0, len(e.Inconsistencies))
	for _, inc := range e.Inconsistencies {
		parts = append(parts, fmt.Sprintf("%s sold %.4f of %.4f held on %s (tx %s)",
			inc.Ticker, inc.Sold, inc.Held, inc.Date.Format("2006-01-02"), inc.TransactionID))
	}
	return "ledger inconsistency: " + strings.Join(parts, "; ")
}

// Involves reports whether transaction id caused one of the inconsistencies
func (e *InconsistencyError) Involves(id string) bool {
	for _, inc := range e.Inconsistencies {
		if inc.TransactionID == id {
			return true
		}
	}
	return false
}
