package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/carteira/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// BackupJob uploads a database backup on schedule
type BackupJob struct {
	service *BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates the backup job
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "backup_ledger").Logger(),
	}
}

// Run creates and uploads a backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	key, err := j.service.Backup(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return err
	}
	j.log.Debug().Str("key", key).Msg("Backup job finished")
	return nil
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup_ledger"
}

// minFreeDiskBytes is the free space below which maintenance fails
const minFreeDiskBytes = 500 * 1024 * 1024

// MaintenanceJob checks database integrity, truncates WAL files and watches disk space
type MaintenanceJob struct {
	databases []*database.DB
	dataDir   string
	usage     func(path string) (*disk.UsageStat, error)
	log       zerolog.Logger
}

// NewMaintenanceJob creates the daily maintenance job
func NewMaintenanceJob(databases []*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		usage:     disk.Usage,
		log:       log.With().Str("job", "maintain_databases").Logger(),
	}
}

// Run executes the maintenance steps. Integrity failures and low disk space are errors.
func (j *MaintenanceJob) Run() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var errs []error
	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			errs = append(errs, err)
			continue
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
		if stats, err := db.GetStats(); err == nil {
			j.log.Debug().
				Str("database", db.Name()).
				Int64("size_bytes", stats.SizeBytes).
				Int64("wal_bytes", stats.WALSizeBytes).
				Msg("Database stats")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		errs = append(errs, err)
	}

	j.log.Info().Dur("duration", time.Since(start)).Int("failures", len(errs)).Msg("Maintenance completed")
	return errors.Join(errs...)
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintain_databases"
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := j.usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage: %w", err)
	}

	freeMB := usage.Free / 1024 / 1024
	if usage.Free < minFreeDiskBytes {
		j.log.Error().Uint64("free_mb", freeMB).Msg("Disk space critically low")
		return fmt.Errorf("only %d MB free on %s", freeMB, j.dataDir)
	}
	if usage.UsedPercent > 90 {
		j.log.Warn().Uint64("free_mb", freeMB).Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	}
	return nil
}
