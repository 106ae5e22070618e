package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"budgetsync/internal/infrastructure/postgres/listener"
	"budgetsync/internal/interfaces/scheduler"
)

// NewServer creates the HTTP server. WriteTimeout leaves room for a
// synchronous single-account sync.
func NewServer(addr string, handler http.Handler, syncTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      syncTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer runs srv in the background. Listen failures are sent on the
// returned channel.
func StartServer(srv *http.Server, log zerolog.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// GracefulShutdown stops accepting requests, then drains the listener and
// the scheduler.
func GracefulShutdown(srv *http.Server, sched *scheduler.Scheduler, l *listener.AccountListener, timeout time.Duration, log zerolog.Logger) {
	log.Info().Msg("Server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	if l != nil {
		l.Stop()
	}

	if sched != nil {
		sched.Shutdown(timeout)
	}

	log.Info().Msg("Server stopped")
}
