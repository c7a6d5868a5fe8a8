// Package router assembles the HTTP surface behind a chi mux.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicpulse/outreach/internal/http/handlers"
	httpmiddleware "github.com/clinicpulse/outreach/internal/http/middleware"
	"github.com/clinicpulse/outreach/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	CallOutcome     *handlers.CallOutcomeHandler
	StaffRequests   *handlers.StaffRequestsHandler
	ManualCall      *handlers.ManualCallHandler
	Jobs            *handlers.JobsHandler
	MetricsHandler  http.Handler
	StaffAuthSecret string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health)
		if cfg.CallOutcome != nil {
			public.Post("/webhooks/voice/call-outcome", cfg.CallOutcome.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Staff console and job triggers, behind the staff JWT. With no secret
	// configured the middleware rejects everything.
	r.Group(func(staff chi.Router) {
		staff.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
		if cfg.StaffRequests != nil {
			staff.Route("/staff/requests", func(r chi.Router) {
				r.Get("/", cfg.StaffRequests.ListPending)
				r.Post("/", cfg.StaffRequests.Resolve)
			})
		}
		if cfg.ManualCall != nil {
			staff.Post("/staff/call", cfg.ManualCall.Handle)
		}
		if cfg.Jobs != nil {
			staff.Route("/jobs", func(r chi.Router) {
				r.Post("/reminders/24h", cfg.Jobs.Reminders24Hour)
				r.Post("/reminders/2h", cfg.Jobs.Reminders2Hour)
				r.Post("/no-shows", cfg.Jobs.NoShows)
				r.Post("/follow-ups", cfg.Jobs.Followups)
			})
		}
	})

	return r
}
