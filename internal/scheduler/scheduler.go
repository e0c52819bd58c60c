// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus describes a registered job
type JobStatus struct {
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	LastErr  string    `json:"last_error,omitempty"`
	Running  bool      `json:"running"`
}

type registeredJob struct {
	mu       sync.Mutex
	job      Job
	entryID  cron.EntryID
	schedule string
	lastRun  time.Time
	lastErr  error
	running  bool
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	mu   sync.RWMutex
	jobs map[string]*registeredJob
	log  zerolog.Logger
}

// New creates a new scheduler. Schedules carry a leading seconds field.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		jobs: make(map[string]*registeredJob),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule. Names must be unique.
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 0 6 * * *"        - 6 AM daily
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	rj := &registeredJob{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(rj); err != nil && err != errAlreadyRunning {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}
	rj.entryID = id
	s.jobs[job.Name()] = rj

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	rj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return domain.NewNotFound("job", name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.run(rj)
}

// Jobs returns the registered jobs sorted by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, rj := range s.jobs {
		rj.mu.Lock()
		status := JobStatus{
			Name:     name,
			Schedule: rj.schedule,
			NextRun:  s.cron.Entry(rj.entryID).Next,
			LastRun:  rj.lastRun,
			Running:  rj.running,
		}
		if rj.lastErr != nil {
			status.LastErr = rj.lastErr.Error()
		}
		rj.mu.Unlock()
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var errAlreadyRunning = errors.New("job already running")

func (s *Scheduler) run(rj *registeredJob) error {
	rj.mu.Lock()
	if rj.running {
		rj.mu.Unlock()
		s.log.Warn().Str("job", rj.job.Name()).Msg("Job still running, skipping")
		return errAlreadyRunning
	}
	rj.running = true
	rj.mu.Unlock()

	start := time.Now()
	s.log.Debug().Str("job", rj.job.Name()).Msg("Running job")
	err := rj.job.Run()

	rj.mu.Lock()
	rj.running = false
	rj.lastRun = start
	rj.lastErr = err
	rj.mu.Unlock()

	if err == nil {
		s.log.Debug().
			Str("job", rj.job.Name()).
			Dur("duration", time.Since(start)).
			Msg("Job completed")
	}
	return err
}
