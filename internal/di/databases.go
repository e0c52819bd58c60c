// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/carteira/internal/config"
	"github.com/aristath/carteira/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the four databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	entries := []struct {
		target  **database.DB
		name    string
		profile database.DatabaseProfile
	}{
		// Source of truth for every cash and asset movement
		{&container.LedgerDB, "ledger", database.ProfileLedger},
		{&container.PortfolioDB, "portfolio", database.ProfileStandard},
		{&container.HistoryDB, "history", database.ProfileStandard},
		// Rebuildable from the quote API at any time
		{&container.ClientDataDB, "client_data", database.ProfileCache},
	}

	for _, entry := range entries {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, entry.name+".db"),
			Profile: entry.profile,
			Name:    entry.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", entry.name, err)
		}
		*entry.target = db
	}

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("All databases initialized and schemas applied")
	return container, nil
}
