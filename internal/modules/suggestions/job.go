package suggestions

import (
	"context"

	"github.com/rs/zerolog"
)

// GenerateJob generates suggestions for every portfolio
type GenerateJob struct {
	engine *Engine
	log    zerolog.Logger
}

// NewGenerateJob creates a new suggestion generation job
func NewGenerateJob(engine *Engine, log zerolog.Logger) *GenerateJob {
	return &GenerateJob{
		engine: engine,
		log:    log.With().Str("job", "generate_suggestions").Logger(),
	}
}

// Run generates suggestions for all portfolios
func (j *GenerateJob) Run() error {
	created, err := j.engine.GenerateAll(context.Background())
	j.log.Info().Int("created", created).Msg("Suggestion generation completed")
	return err
}

// Name returns the job name
func (j *GenerateJob) Name() string {
	return "generate_suggestions"
}
