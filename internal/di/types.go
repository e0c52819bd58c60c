/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived dependency of the service. It is
 * built once by Wire and handed to the server and the scheduler.
 */
package di

import (
	"github.com/aristath/carteira/internal/clientdata"
	"github.com/aristath/carteira/internal/clients/brapi"
	"github.com/aristath/carteira/internal/database"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/modules/ledger"
	"github.com/aristath/carteira/internal/modules/marketdata"
	"github.com/aristath/carteira/internal/modules/metrics"
	"github.com/aristath/carteira/internal/modules/portfolio"
	"github.com/aristath/carteira/internal/modules/suggestions"
	"github.com/aristath/carteira/internal/reliability"
	"github.com/aristath/carteira/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	// Databases
	LedgerDB     *database.DB // transactions
	PortfolioDB  *database.DB // portfolios, targets, metrics snapshots, rebalance decisions
	HistoryDB    *database.DB // daily prices, company profiles, dividend events, fair values
	ClientDataDB *database.DB // API response cache

	// Repositories
	TransactionRepo *ledger.TransactionRepository
	PortfolioRepo   *portfolio.Repository
	SnapshotRepo    *metrics.SnapshotRepository
	DecisionRepo    *suggestions.DecisionRepository
	ClientDataRepo  *clientdata.Repository
	PriceRepo       *marketdata.PriceRepository
	CompanyRepo     *marketdata.CompanyRepository
	DividendRepo    *marketdata.DividendEventRepository
	FairValueRepo   *marketdata.FairValueRepository

	// Clients
	BrapiClient *brapi.Client
	R2Client    *reliability.R2Client // nil when R2 is not configured

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Market data
	QuoteService    *marketdata.QuoteService
	SectorService   *marketdata.SectorService
	DividendService *marketdata.DividendService
	UpsideService   *marketdata.UpsideService

	// Core services
	Clock            domain.Clock
	Threshold        accounting.Threshold
	PortfolioService *portfolio.Service
	HoldingsService  *portfolio.HoldingsService
	LedgerService    *ledger.Service
	MetricsEngine    *metrics.Engine
	SuggestionEngine *suggestions.Engine
	BackupService    *reliability.BackupService // nil when R2 is not configured

	Scheduler *scheduler.Scheduler
}

// Databases returns every open database
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.LedgerDB, c.PortfolioDB, c.HistoryDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops the scheduler and closes every database
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}
