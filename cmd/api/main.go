package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"budgetsync/internal/shared/config"
	"budgetsync/internal/shared/logger"
	"budgetsync/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireTriggerSecret(); err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  os.Getenv("ENVIRONMENT"),
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer flushTelemetry(shutdownTelemetry, log)
	}

	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.Scheduler.Start()
	if deps.Listener != nil {
		deps.Listener.Start(ctx)
	}

	srv := NewServer(cfg.Server.Host+":"+cfg.Server.Port, SetupRoutes(deps, cfg, log), cfg.Scheduler.JobTimeout)
	serverErr := StartServer(srv, log)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			GracefulShutdown(srv, deps.Scheduler, deps.Listener, 30*time.Second, log)
			return fmt.Errorf("http server: %w", err)
		}
	}

	GracefulShutdown(srv, deps.Scheduler, deps.Listener, 30*time.Second, log)
	return nil
}

func flushTelemetry(shutdown func(context.Context) error, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Telemetry shutdown failed")
	}
}
