package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/carteira/internal/database"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/reliability"
	"github.com/aristath/carteira/internal/scheduler"
)

// SystemHandlers serves health, host status and job endpoints
type SystemHandlers struct {
	startedAt time.Time
	dataDir   string
	databases []*database.DB
	scheduler *scheduler.Scheduler
	backups   *reliability.BackupService // nil when backups are disabled
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(
	dataDir string,
	databases []*database.DB,
	sched *scheduler.Scheduler,
	backups *reliability.BackupService,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		startedAt: time.Now(),
		dataDir:   dataDir,
		databases: databases,
		scheduler: sched,
		backups:   backups,
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// SystemStatusResponse represents host and process status
type SystemStatusResponse struct {
	StartedAt      time.Time             `json:"started_at"`
	Status         string                `json:"status"`
	GoVersion      string                `json:"go_version"`
	Jobs           []scheduler.JobStatus `json:"jobs"`
	UptimeSeconds  int64                 `json:"uptime_seconds"`
	HostUptime     uint64                `json:"host_uptime_seconds"`
	Goroutines     int                   `json:"goroutines"`
	CPUPercent     float64               `json:"cpu_percent"`
	MemoryPercent  float64               `json:"memory_percent"`
	MemoryUsedMB   float64               `json:"memory_used_mb"`
	DiskPercent    float64               `json:"disk_percent"`
	DiskFreeMB     float64               `json:"disk_free_mb"`
	BackupsEnabled bool                  `json:"backups_enabled"`
}

// DatabaseStats is the size report of one database
type DatabaseStats struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// HandleHealth pings every database. It answers 503 when any is unreachable.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, db := range h.databases {
		if err := db.Conn().PingContext(ctx); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Health check failed")
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": db.Name(),
			})
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "carteira",
	})
}

// HandleSystemStatus returns process, host and scheduler status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Status:         "healthy",
		StartedAt:      h.startedAt.UTC(),
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		BackupsEnabled: h.backups != nil,
		Jobs:           []scheduler.JobStatus{},
	}

	// Short sample window keeps the endpoint responsive
	if percents, err := cpu.PercentWithContext(r.Context(), 100*time.Millisecond, false); err == nil && len(percents) > 0 {
		response.CPUPercent = percents[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	}

	if memStat, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		response.MemoryPercent = memStat.UsedPercent
		response.MemoryUsedMB = float64(memStat.Used) / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	if usage, err := disk.UsageWithContext(r.Context(), h.dataDir); err == nil {
		response.DiskPercent = usage.UsedPercent
		response.DiskFreeMB = float64(usage.Free) / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
	}

	if uptime, err := host.UptimeWithContext(r.Context()); err == nil {
		response.HostUptime = uptime
	}

	if h.scheduler != nil {
		response.Jobs = h.scheduler.Jobs()
		for _, job := range response.Jobs {
			if job.LastErr != "" {
				response.Status = "degraded"
			}
		}
	}

	httputil.WriteData(w, http.StatusOK, response)
}

// HandleDatabaseStats reports file sizes of every database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]DatabaseStats, 0, len(h.databases))
	for _, db := range h.databases {
		s, err := db.GetStats()
		if err != nil {
			httputil.WriteError(w, h.log, err)
			return
		}
		stats = append(stats, DatabaseStats{
			Name:      db.Name(),
			SizeMB:    float64(s.SizeBytes) / 1024 / 1024,
			WALSizeMB: float64(s.WALSizeBytes) / 1024 / 1024,
			PageCount: s.PageCount,
		})
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"databases": stats})
}

// HandleJobs lists the scheduled jobs
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.scheduler != nil {
		jobs = h.scheduler.Jobs()
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleRunJob triggers a job in the background and answers 202
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.hasJob(name) {
		httputil.WriteError(w, h.log, domain.NewNotFound("job", name))
		return
	}

	go func() {
		if err := h.scheduler.RunNow(name); err != nil {
			h.log.Warn().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	httputil.WriteData(w, http.StatusAccepted, map[string]string{
		"job":    name,
		"status": "started",
	})
}

// HandleListBackups lists the uploaded backups, newest first
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		httputil.WriteData(w, http.StatusOK, map[string]interface{}{
			"enabled": false,
			"backups": []reliability.BackupInfo{},
		})
		return
	}

	backups, err := h.backups.List(r.Context())
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"backups": backups,
	})
}

func (h *SystemHandlers) hasJob(name string) bool {
	if h.scheduler == nil {
		return false
	}
	for _, job := range h.scheduler.Jobs() {
		if job.Name == name {
			return true
		}
	}
	return false
}
