package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.Equal(t, "cleanup_client_data", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	require.NoError(t, repo.Store("quotes", "EXP1", cachedQuote{Ticker: "EXP1"}, -time.Hour))
	require.NoError(t, repo.Store("quotes", "FRESH", cachedQuote{Ticker: "FRESH"}, time.Hour))
	require.NoError(t, repo.Store("dividends", "EXP2", []float64{1}, -time.Hour))

	require.NoError(t, job.Run())

	var quotes, dividends int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM quotes").Scan(&quotes))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM dividends").Scan(&dividends))
	assert.Equal(t, 1, quotes)
	assert.Equal(t, 0, dividends)
}

func TestCleanupJobRun_Empty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.NoError(t, job.Run())
}
