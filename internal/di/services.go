// Package di provides dependency injection for service implementations.
package di

import (
	"fmt"

	"github.com/aristath/carteira/internal/clients/brapi"
	"github.com/aristath/carteira/internal/config"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
	"github.com/aristath/carteira/internal/modules/accounting"
	"github.com/aristath/carteira/internal/modules/ledger"
	"github.com/aristath/carteira/internal/modules/marketdata"
	"github.com/aristath/carteira/internal/modules/metrics"
	"github.com/aristath/carteira/internal/modules/portfolio"
	"github.com/aristath/carteira/internal/modules/suggestions"
	"github.com/aristath/carteira/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients and services in dependency order
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	if container.Clock == nil {
		container.Clock = domain.SystemClock{}
	}
	container.Threshold = accounting.Threshold{
		Absolute: cfg.Rebalance.AbsoluteThreshold,
		Relative: cfg.Rebalance.RelativeThreshold,
	}

	// ==========================================
	// STEP 1: Events
	// ==========================================
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// ==========================================
	// STEP 2: Market data collaborators
	// ==========================================
	container.BrapiClient = brapi.NewClient(cfg.QuoteAPIURL, cfg.QuoteAPIToken, log)

	container.QuoteService = marketdata.NewQuoteService(
		container.BrapiClient,
		container.ClientDataRepo,
		container.PriceRepo,
		container.Clock,
		log,
	)
	container.SectorService = marketdata.NewSectorService(container.BrapiClient, container.CompanyRepo, log)
	container.DividendService = marketdata.NewDividendService(
		container.BrapiClient,
		container.ClientDataRepo,
		container.DividendRepo,
		container.Clock,
		log,
	)
	container.UpsideService = marketdata.NewUpsideService(container.QuoteService, container.FairValueRepo, log)

	// ==========================================
	// STEP 3: Portfolio and holdings
	// ==========================================
	// The metrics engine is attached as invalidator once it exists (step 4)
	container.PortfolioService = portfolio.NewService(container.PortfolioRepo, container.EventManager, nil, log)
	container.HoldingsService = portfolio.NewHoldingsService(
		container.TransactionRepo,
		container.PortfolioService,
		container.QuoteService,
		container.Threshold,
		log,
	)

	// ==========================================
	// STEP 4: Metrics engine
	// ==========================================
	container.MetricsEngine = metrics.NewEngine(
		container.TransactionRepo,
		container.PortfolioService,
		container.QuoteService,
		container.SectorService,
		container.SnapshotRepo,
		container.EventManager,
		container.Clock,
		container.Threshold,
		cfg.RiskFreeRate,
		log,
	)
	container.PortfolioService.SetInvalidator(container.MetricsEngine)

	// ==========================================
	// STEP 5: Transaction lifecycle and suggestions
	// ==========================================
	container.LedgerService = ledger.NewService(
		container.LedgerDB.Conn(),
		container.TransactionRepo,
		container.MetricsEngine,
		container.EventManager,
		container.Clock,
		log,
	)
	container.SuggestionEngine = suggestions.NewEngine(
		container.LedgerDB.Conn(),
		container.TransactionRepo,
		container.PortfolioService,
		container.QuoteService,
		container.DividendService,
		container.DecisionRepo,
		container.MetricsEngine,
		container.EventManager,
		container.Clock,
		container.Threshold,
		log,
	)

	// ==========================================
	// STEP 6: Backups (optional)
	// ==========================================
	if cfg.R2.Enabled() {
		r2Client, err := reliability.NewR2Client(
			cfg.R2.AccountID,
			cfg.R2.AccessKeyID,
			cfg.R2.SecretAccessKey,
			cfg.R2.BucketName,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to create r2 client: %w", err)
		}
		container.R2Client = r2Client
		container.BackupService = reliability.NewBackupService(
			r2Client,
			container.Databases(),
			cfg.R2.Retention,
			container.EventManager,
			container.Clock,
			log,
		)
		log.Info().Str("bucket", cfg.R2.BucketName).Msg("R2 backups enabled")
	} else {
		log.Info().Msg("R2 credentials not set, backups disabled")
	}

	log.Debug().Msg("Services initialized")
	return nil
}
