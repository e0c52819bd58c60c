// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/aristath/carteira/internal/clientdata"
	"github.com/aristath/carteira/internal/modules/ledger"
	"github.com/aristath/carteira/internal/modules/marketdata"
	"github.com/aristath/carteira/internal/modules/metrics"
	"github.com/aristath/carteira/internal/modules/portfolio"
	"github.com/aristath/carteira/internal/modules/suggestions"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// ledger.db
	container.TransactionRepo = ledger.NewTransactionRepository(container.LedgerDB.Conn(), log)

	// portfolio.db
	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.SnapshotRepo = metrics.NewSnapshotRepository(container.PortfolioDB.Conn(), log)
	container.DecisionRepo = suggestions.NewDecisionRepository(container.PortfolioDB.Conn(), log)

	// history.db
	container.PriceRepo = marketdata.NewPriceRepository(container.HistoryDB.Conn(), log)
	container.CompanyRepo = marketdata.NewCompanyRepository(container.HistoryDB.Conn(), log)
	container.DividendRepo = marketdata.NewDividendEventRepository(container.HistoryDB.Conn(), log)
	container.FairValueRepo = marketdata.NewFairValueRepository(container.HistoryDB.Conn(), log)

	// client_data.db
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	log.Debug().Msg("Repositories initialized")
	return nil
}
