package main

import (
	"context"

	"github.com/rs/zerolog"

	"budgetsync/internal/app"
	"budgetsync/internal/infrastructure/postgres/listener"
	httphandlers "budgetsync/internal/interfaces/http"
	"budgetsync/internal/interfaces/scheduler"
	"budgetsync/internal/shared/auth"
	"budgetsync/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Core *app.Core

	Scheduler *scheduler.Scheduler
	Listener  *listener.AccountListener

	// Handlers
	SyncHandler    *httphandlers.SyncHandler
	AccountHandler *httphandlers.AccountHandler
	HealthHandler  *httphandlers.HealthHandler

	Verifier *auth.SecretVerifier
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, error) {
	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// The pool serves the HTTP trigger too, so it exists even when the cron
	// trigger is disabled.
	sched, err := scheduler.NewScheduler(scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		Cron:         cfg.Scheduler.Cron,
		WorkerCount:  cfg.Scheduler.WorkerCount,
		JobDelay:     cfg.Scheduler.JobDelay,
		QueueSize:    cfg.Scheduler.QueueSize,
		JobTimeout:   cfg.Scheduler.JobTimeout,
		RunOnStartup: cfg.Scheduler.RunOnStartup,
		Options:      core.SyncOptions,
	}, core.Accounts, core.Engine, log)
	if err != nil {
		core.Close()
		return nil, err
	}

	deps := &Dependencies{
		Core:           core,
		Scheduler:      sched,
		SyncHandler:    httphandlers.NewSyncHandler(sched, core.Engine, core.SyncOptions, cfg.Sync.TriggerLimit, log),
		AccountHandler: httphandlers.NewAccountHandler(core.Accounts, core.Records, log),
		Verifier:       auth.NewSecretVerifier(cfg.Trigger.Secret, cfg.Trigger.SecretHash),
	}

	if core.DB != nil {
		deps.HealthHandler = httphandlers.NewHealthHandler(core.DB)
		if cfg.Store.ListenForRegistrations {
			deps.Listener = listener.NewAccountListener(cfg.Database.ConnectionString(), sched, log)
		}
	} else {
		deps.HealthHandler = httphandlers.NewHealthHandler(nil)
	}

	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Core != nil {
		d.Core.Close()
	}
}
