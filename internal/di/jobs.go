// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/carteira/internal/clientdata"
	"github.com/aristath/carteira/internal/config"
	"github.com/aristath/carteira/internal/modules/metrics"
	"github.com/aristath/carteira/internal/modules/suggestions"
	"github.com/aristath/carteira/internal/reliability"
	"github.com/aristath/carteira/internal/scheduler"
	"github.com/rs/zerolog"
)

type scheduledJob struct {
	job      scheduler.Job
	schedule string
}

// RegisterJobs creates the scheduler and registers every periodic job.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)

	jobs := []scheduledJob{
		{suggestions.NewGenerateJob(container.SuggestionEngine, log), cfg.Scheduler.SuggestionsSchedule},
		{metrics.NewRefreshJob(container.MetricsEngine, log), cfg.Scheduler.MetricsSchedule},
		{clientdata.NewCleanupJob(container.ClientDataRepo, log), cfg.Scheduler.CleanupSchedule},
		{reliability.NewMaintenanceJob(container.Databases(), cfg.DataDir, log), cfg.Scheduler.MaintenanceSchedule},
	}
	if container.BackupService != nil {
		jobs = append(jobs, scheduledJob{reliability.NewBackupJob(container.BackupService, log), cfg.Scheduler.BackupSchedule})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register %s: %w", j.job.Name(), err)
		}
	}

	container.Scheduler = sched
	log.Info().Int("jobs", len(jobs)).Msg("Jobs registered")
	return nil
}
