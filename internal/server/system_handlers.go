package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/scheduler"
)

// SystemHandlers handles health and operational endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	scheduler *scheduler.Scheduler
	jobs      map[string]scheduler.Job
	startedAt time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, db *database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		scheduler: sched,
		jobs:      make(map[string]scheduler.Job),
		startedAt: time.Now(),
	}
}

// RegisterJob makes a job manually triggerable by name
func (h *SystemHandlers) RegisterJob(job scheduler.Job) {
	h.jobs[job.Name()] = job
}

// HandleHealth returns liveness status
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Conn().Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"uptime": time.Since(h.startedAt).String(),
	})
}

// HandleStatus returns aggregate system counters
// GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int64)
	for name, query := range map[string]string{
		"decisions":      "SELECT COUNT(*) FROM decisions",
		"positions":      "SELECT COUNT(*) FROM positions",
		"pattern_events": "SELECT COUNT(*) FROM pattern_events",
		"braids":         "SELECT COUNT(*) FROM braids",
		"lessons":        "SELECT COUNT(*) FROM lessons",
	} {
		var n int64
		if err := h.db.QueryRow(query).Scan(&n); err != nil {
			h.log.Error().Err(err).Str("table", name).Msg("Failed to count rows")
			http.Error(w, "Failed to read system status", http.StatusInternalServerError)
			return
		}
		counts[name] = n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime": time.Since(h.startedAt).String(),
		"counts": counts,
	})
}

// HandleRunJob triggers a registered job immediately
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	if err := h.scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		http.Error(w, "Job failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"job": name, "status": "completed"})
}
