// Package testing provides testing utilities and helpers for the carteira project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/carteira/internal/database"
)

// NewTestDB creates a temp-file SQLite database with the embedded schema for
// name applied ("ledger", "portfolio", "history", "client_data"). Unknown
// names get an empty database. The database is closed and removed when the
// test finishes.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()
	return newTestDB(t, name, database.DriverModernc)
}

// NewTestDBWithDriver is NewTestDB with an explicit sqlite driver
func NewTestDBWithDriver(t *testing.T, name, driver string) *database.DB {
	t.Helper()
	return newTestDB(t, name, driver)
}

func newTestDB(t *testing.T, name, driver string) *database.DB {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
		Driver:  driver,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		_ = os.Remove(tmpPath)
		_ = os.Remove(tmpPath + "-wal")
		_ = os.Remove(tmpPath + "-shm")
	})

	return db
}
