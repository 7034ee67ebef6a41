/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. Metrics:    Prometheus request counters (when configured)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/cashbook/*        Entries, overrides, reorder, recalculation
  /api/cashbook/archives Archive batches and reports
  /api/backup/*          Backup scheduler
  /metrics               Prometheus exposition
  /health                Liveness

SECURITY NOTE:
  No authentication middleware. The service is expected to run behind the
  application's own authenticated gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string

	// Metrics, when set, wraps every request.
	Metrics func(http.Handler) http.Handler

	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if opts.Metrics != nil {
		r.Use(opts.Metrics)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/cashbook", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Delete("/", h.DeleteActiveEntries)
			r.Post("/reorder", h.Reorder)
			r.Post("/recalculate", h.Recalculate)

			// Archive routes
			r.Route("/archives", func(r chi.Router) {
				r.Get("/", h.ListArchives)
				r.Post("/", h.CreateArchive)
				r.Get("/entries", h.ArchivedEntries)
				r.Get("/report", h.ArchiveReport)
				r.Post("/restore", h.RestoreArchive)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEntry)
				r.Put("/", h.UpdateEntry)
				r.Delete("/", h.DeleteEntry)
				r.Patch("/override", h.OverrideFields)
				r.Delete("/override", h.RemoveOverride)
			})
		})

		// Backup routes
		r.Route("/backup", func(r chi.Router) {
			r.Get("/status", h.BackupStatus)
			r.Post("/", h.RunBackup)
			r.Put("/settings", h.UpdateBackupSettings)
		})
	})

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)
	r.Get("/health", h.Health)

	return r
}
