package handlers

import (
	"context"
	"net/http"

	"github.com/clinicpulse/outreach/internal/jobs"
	"github.com/clinicpulse/outreach/pkg/logging"
)

type jobFunc func(ctx context.Context) (jobs.RunResult, error)

// JobsConfig wires the batch passes behind the trigger endpoints.
type JobsConfig struct {
	Reminders24Hour jobFunc
	Reminders2Hour  jobFunc
	NoShows         jobFunc
	Followups       jobFunc
	Logger          *logging.Logger
}

// JobsHandler exposes the batch passes as on-demand POST triggers. The
// passes themselves are idempotent, so an external cron hitting these
// endpoints twice is harmless.
type JobsHandler struct {
	cfg JobsConfig
}

func NewJobsHandler(cfg JobsConfig) *JobsHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &JobsHandler{cfg: cfg}
}

func (h *JobsHandler) Reminders24Hour(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "reminders_24h", h.cfg.Reminders24Hour)
}

func (h *JobsHandler) Reminders2Hour(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "reminders_2h", h.cfg.Reminders2Hour)
}

func (h *JobsHandler) NoShows(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "no_show_detect", h.cfg.NoShows)
}

func (h *JobsHandler) Followups(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "followup_sequence", h.cfg.Followups)
}

func (h *JobsHandler) trigger(w http.ResponseWriter, r *http.Request, name string, run jobFunc) {
	if run == nil {
		http.Error(w, "job not configured", http.StatusServiceUnavailable)
		return
	}
	result, err := run(r.Context())
	if err != nil {
		h.cfg.Logger.Error("job run failed", "job", name, "error", err)
		http.Error(w, "job failed", http.StatusInternalServerError)
		return
	}
	if failures := result.Failures(); failures > 0 {
		h.cfg.Logger.Warn("job completed with failures", "job", name, "processed", result.Processed, "failures", failures)
	}
	writeJSON(w, http.StatusOK, result)
}
