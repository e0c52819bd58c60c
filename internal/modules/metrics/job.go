package metrics

import (
	"context"

	"github.com/rs/zerolog"
)

// RefreshJob recomputes stale snapshots on a schedule
type RefreshJob struct {
	engine *Engine
	log    zerolog.Logger
}

// NewRefreshJob creates a new metrics refresh job
func NewRefreshJob(engine *Engine, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		engine: engine,
		log:    log.With().Str("job", "refresh_metrics").Logger(),
	}
}

// Run refreshes every stale snapshot
func (j *RefreshJob) Run() error {
	refreshed, err := j.engine.RefreshStale(context.Background())
	if refreshed > 0 {
		j.log.Info().Int("refreshed", refreshed).Msg("Metrics refresh completed")
	}
	return err
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh_metrics"
}
