package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/work"
)

// FeedStatus exposes the market data client's remaining request budget.
type FeedStatus interface {
	GetRemainingRequests() int
}

// SystemHandlers serves health, job status, and manual job triggers.
type SystemHandlers struct {
	log        zerolog.Logger
	dataDir    string
	databases  []*database.DB
	registry   *work.Registry
	completion *work.CompletionTracker
	processor  *work.Processor
	feed       FeedStatus
}

// NewSystemHandlers creates the system handler set. feed may be nil
// when no market data provider is configured.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	registry *work.Registry,
	completion *work.CompletionTracker,
	processor *work.Processor,
	feed FeedStatus,
) *SystemHandlers {
	return &SystemHandlers{
		log:        log.With().Str("component", "system_handlers").Logger(),
		dataDir:    dataDir,
		databases:  databases,
		registry:   registry,
		completion: completion,
		processor:  processor,
		feed:       feed,
	}
}

// RegisterRoutes mounts the system routes on the router.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/health", h.HandleSystemHealth)
		r.Get("/jobs", h.HandleJobsStatus)
	})
	r.Post("/jobs/{jobID}/trigger", h.HandleTriggerJob)
}

// DatabaseHealth reports one database's integrity and size.
type DatabaseHealth struct {
	Name   string  `json:"name"`
	OK     bool    `json:"ok"`
	SizeMB float64 `json:"size_mb"`
}

// SystemHealthResponse is the payload of the health endpoint.
type SystemHealthResponse struct {
	Status          string           `json:"status"`
	CPUPercent      float64          `json:"cpu_percent"`
	MemoryPercent   float64          `json:"memory_percent"`
	Databases       []DatabaseHealth `json:"databases"`
	FeedRequests    *int             `json:"feed_requests_remaining,omitempty"`
	UptimeCheckedAt string           `json:"checked_at"`
}

// HandleSystemHealth returns process and database health.
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuAvg, memPercent := h.systemStats()

	status := "healthy"
	databases := make([]DatabaseHealth, 0, len(h.databases))
	for _, db := range h.databases {
		if db == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := db.QuickCheck(ctx)
		cancel()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database integrity check failed")
			status = "degraded"
		}

		var sizeMB float64
		if info, statErr := os.Stat(db.Path()); statErr == nil {
			sizeMB = float64(info.Size()) / 1024 / 1024
		}

		databases = append(databases, DatabaseHealth{
			Name:   db.Name(),
			OK:     err == nil,
			SizeMB: sizeMB,
		})
	}

	response := SystemHealthResponse{
		Status:          status,
		CPUPercent:      cpuAvg,
		MemoryPercent:   memPercent,
		Databases:       databases,
		UptimeCheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if h.feed != nil {
		remaining := h.feed.GetRemainingRequests()
		response.FeedRequests = &remaining
	}

	writeJSON(h.log, w, http.StatusOK, response)
}

// JobStatus reports one registered work type's state.
type JobStatus struct {
	ID            string     `json:"id"`
	Priority      string     `json:"priority"`
	Interval      string     `json:"interval"`
	DependsOn     []string   `json:"depends_on,omitempty"`
	LastCompleted *time.Time `json:"last_completed,omitempty"`
}

// JobsStatusResponse is the payload of the jobs status endpoint.
type JobsStatusResponse struct {
	Jobs       []JobStatus `json:"jobs"`
	InFlight   []string    `json:"in_flight"`
	RetryQueue int         `json:"retry_queue"`
}

// HandleJobsStatus returns the registered background jobs and their
// last completion times.
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := make([]JobStatus, 0, h.registry.Count())
	for _, wt := range h.registry.ByPriority() {
		status := JobStatus{
			ID:        wt.ID,
			Priority:  wt.Priority.String(),
			Interval:  wt.Interval.String(),
			DependsOn: wt.DependsOn,
		}
		if completedAt, ok := h.completion.GetCompletion(wt.ID, ""); ok {
			status.LastCompleted = &completedAt
		}
		jobs = append(jobs, status)
	}

	writeJSON(h.log, w, http.StatusOK, JobsStatusResponse{
		Jobs:       jobs,
		InFlight:   h.processor.InFlight(),
		RetryQueue: h.processor.RetryQueueLength(),
	})
}

// HandleTriggerJob runs a registered job immediately, bypassing the
// interval and dependency checks.
// POST /api/jobs/{jobID}/trigger?subject=...
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	subject := r.URL.Query().Get("subject")

	if !h.registry.Has(jobID) {
		writeError(h.log, w, http.StatusNotFound, "unknown job: "+jobID)
		return
	}

	h.log.Info().Str("job", jobID).Str("subject", subject).Msg("Manually triggering job")
	if err := h.processor.ExecuteNow(jobID, subject); err != nil {
		h.log.Error().Err(err).Str("job", jobID).Msg("Manual job run failed")
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(h.log, w, http.StatusOK, map[string]string{
		"status": "completed",
		"job":    jobID,
	})
}

// systemStats samples CPU and RAM usage. The short CPU interval keeps
// the health endpoint responsive.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
