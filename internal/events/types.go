// Package events provides in-process event publishing for ledger and
// planning activity.
package events

import (
	"encoding/json"
	"time"
)

// EventType identifies an event
type EventType string

const (
	TransactionCreated   EventType = "TRANSACTION_CREATED"
	TransactionConfirmed EventType = "TRANSACTION_CONFIRMED"
	TransactionRejected  EventType = "TRANSACTION_REJECTED"
	TransactionReverted  EventType = "TRANSACTION_REVERTED"
	TransactionUpdated   EventType = "TRANSACTION_UPDATED"
	TransactionDeleted   EventType = "TRANSACTION_DELETED"
	SuggestionsGenerated EventType = "SUGGESTIONS_GENERATED"
	RebalanceDecided     EventType = "REBALANCE_DECIDED"
	MetricsRefreshed     EventType = "METRICS_REFRESHED"
	TargetsChanged       EventType = "TARGETS_CHANGED"
	BackupCompleted      EventType = "BACKUP_COMPLETED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every event type, used by stream subscribers
var AllEventTypes = []EventType{
	TransactionCreated,
	TransactionConfirmed,
	TransactionRejected,
	TransactionReverted,
	TransactionUpdated,
	TransactionDeleted,
	SuggestionsGenerated,
	RebalanceDecided,
	MetricsRefreshed,
	TargetsChanged,
	BackupCompleted,
	ErrorOccurred,
}

// EventData is implemented by every typed payload
type EventData interface {
	EventType() EventType
}

// Event is one published occurrence
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
	Type      EventType `json:"type"`
	Module    string    `json:"module"`
}

// MarshalJSON renders the event with its payload inline
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		Module    string    `json:"module"`
		Timestamp string    `json:"timestamp"`
		Data      EventData `json:"data"`
	}{
		Type:      e.Type,
		Module:    e.Module,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Data:      e.Data,
	})
}
