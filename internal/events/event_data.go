package events

// TransactionEventData is the payload of every Transaction* event
type TransactionEventData struct {
	Type            EventType `json:"-"`
	TransactionID   string    `json:"transaction_id"`
	PortfolioID     string    `json:"portfolio_id"`
	TransactionType string    `json:"transaction_type"`
	Ticker          string    `json:"ticker,omitempty"`
	Status          string    `json:"status"`
	Amount          float64   `json:"amount"`
}

// EventType returns the lifecycle event this payload belongs to
func (d *TransactionEventData) EventType() EventType {
	return d.Type
}

// SuggestionsGeneratedData contains data for SuggestionsGenerated events
type SuggestionsGeneratedData struct {
	PortfolioID string `json:"portfolio_id"`
	Created     int    `json:"created"`
	Pending     int    `json:"pending"`
	Decisions   int    `json:"decisions"`
}

// EventType returns SuggestionsGenerated
func (d *SuggestionsGeneratedData) EventType() EventType {
	return SuggestionsGenerated
}

// RebalanceDecidedData is the typed audit record of one per-ticker decision
type RebalanceDecidedData struct {
	Profitability    *float64 `json:"profitability,omitempty"`
	DecisionID       string   `json:"decision_id"`
	PortfolioID      string   `json:"portfolio_id"`
	Ticker           string   `json:"ticker"`
	Action           string   `json:"action"`
	Reason           string   `json:"reason"`
	ActualAllocation float64  `json:"actual_allocation"`
	TargetAllocation float64  `json:"target_allocation"`
	Deviation        float64  `json:"deviation"`
	Quantity         float64  `json:"quantity"`
	NeedsRebalancing bool     `json:"needs_rebalancing"`
}

// EventType returns RebalanceDecided
func (d *RebalanceDecidedData) EventType() EventType {
	return RebalanceDecided
}

// MetricsRefreshedData contains data for MetricsRefreshed events
type MetricsRefreshedData struct {
	TotalReturn  *float64 `json:"total_return,omitempty"`
	PortfolioID  string   `json:"portfolio_id"`
	DataGaps     []string `json:"data_gaps,omitempty"`
	CurrentValue float64  `json:"current_value"`
}

// EventType returns MetricsRefreshed
func (d *MetricsRefreshedData) EventType() EventType {
	return MetricsRefreshed
}

// TargetsChangedData contains data for TargetsChanged events
type TargetsChangedData struct {
	PortfolioID string   `json:"portfolio_id"`
	Tickers     []string `json:"tickers"`
}

// EventType returns TargetsChanged
func (d *TargetsChangedData) EventType() EventType {
	return TargetsChanged
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Pruned    int    `json:"pruned"`
}

// EventType returns BackupCompleted
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Context map[string]interface{} `json:"context,omitempty"`
	Error   string                 `json:"error"`
}

// EventType returns ErrorOccurred
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
