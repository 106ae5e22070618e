package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"budgetsync/internal/shared/config"
	"budgetsync/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log.With().Str("component", "http").Logger()))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RouteMetrics)
	r.Use(middleware.HSTS)
	r.Use(middleware.NoStore)

	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", deps.HealthHandler.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BearerSecret(deps.Verifier))

		r.Get("/sync", deps.SyncHandler.HandleTriggerAll)
		r.Post("/sync", deps.SyncHandler.HandleTriggerAll)
		// a single-account sync runs inside the request
		r.With(chimiddleware.Timeout(cfg.Scheduler.JobTimeout+5*time.Second)).
			Post("/sync/{accountID}", deps.SyncHandler.HandleSyncAccount)

		r.Get("/accounts", deps.AccountHandler.HandleListAccounts)
		r.Post("/accounts", deps.AccountHandler.HandleRegisterAccount)
		r.Get("/accounts/{accountID}/sync-records", deps.AccountHandler.HandleListSyncRecords)
	})

	var handler http.Handler = r
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}
	return handler
}
