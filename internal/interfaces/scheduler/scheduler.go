// Package scheduler runs budget syncs in the background: a cron trigger and
// on-demand submissions feed a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"budgetsync/internal/domain/budgetsync"
)

// DefaultCron runs every thirty minutes (seconds field first).
const DefaultCron = "0 */30 * * * *"

// Config holds configuration for the scheduler.
type Config struct {
	// Enabled starts the cron trigger. The pool always runs.
	Enabled      bool
	Cron         string
	WorkerCount  int
	JobDelay     time.Duration
	QueueSize    int
	JobTimeout   time.Duration
	RunOnStartup bool
	// Options are applied to cron-triggered syncs.
	Options budgetsync.Options
}

// Batch describes one fan-out of sync jobs.
type Batch struct {
	ID        string `json:"batchId"`
	Accounts  int    `json:"accounts"`
	Submitted int    `json:"submitted"`
}

// Scheduler submits one sync job per linked account on a cron schedule and on
// demand.
type Scheduler struct {
	cron     *cron.Cron
	pool     *WorkerPool
	accounts budgetsync.AccountLister
	syncer   budgetsync.Syncer
	cfg      Config
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the cron expression and builds the worker pool.
func NewScheduler(cfg Config, accounts budgetsync.AccountLister, syncer budgetsync.Syncer, log zerolog.Logger) (*Scheduler, error) {
	if cfg.Cron == "" {
		cfg.Cron = DefaultCron
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	log = log.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		pool:     NewWorkerPool(cfg.WorkerCount, cfg.JobDelay, cfg.QueueSize, log),
		accounts: accounts,
		syncer:   syncer,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}

	if _, err := s.cron.AddFunc(cfg.Cron, s.runScheduled); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Cron, err)
	}

	log.Info().
		Str("schedule", cfg.Cron).
		Int("workers", cfg.WorkerCount).
		Dur("job_delay", cfg.JobDelay).
		Msg("Scheduler initialized")
	return s, nil
}

// Start launches the worker pool and the cron loop.
func (s *Scheduler) Start() {
	s.pool.Start()
	if !s.cfg.Enabled {
		s.log.Info().Msg("Cron trigger disabled; accepting on-demand jobs only")
		return
	}
	s.cron.Start()

	if s.cfg.RunOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runScheduled()
		}()
	}

	s.log.Info().Msg("Scheduler started")
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	batch, err := s.SubmitAll(ctx, s.cfg.Options)
	if err != nil {
		s.log.Error().Err(err).Msg("Scheduled sync failed to submit")
		return
	}
	s.log.Info().
		Str("batch_id", batch.ID).
		Int("accounts", batch.Accounts).
		Int("submitted", batch.Submitted).
		Msg("Scheduled sync submitted")
}

// SubmitAll queues a sync job for every linked account.
func (s *Scheduler) SubmitAll(ctx context.Context, opts budgetsync.Options) (Batch, error) {
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	batch := Batch{ID: uuid.NewString(), Accounts: len(accounts)}
	if len(accounts) == 0 {
		return batch, nil
	}

	jobs := make([]Job, 0, len(accounts))
	for _, acc := range accounts {
		jobs = append(jobs, s.newJob(acc.ID, batch.ID, opts))
	}
	batch.Submitted = s.pool.SubmitBatch(jobs)
	return batch, nil
}

// SubmitAccount queues a sync of a single account with the scheduled options.
func (s *Scheduler) SubmitAccount(ctx context.Context, accountID string) error {
	if err := s.pool.Submit(s.newJob(accountID, uuid.NewString(), s.cfg.Options)); err != nil {
		return fmt.Errorf("failed to submit sync for account %s: %w", accountID, err)
	}
	return nil
}

func (s *Scheduler) newJob(accountID, batchID string, opts budgetsync.Options) Job {
	return NewSyncJob(accountID, batchID, opts, s.cfg.JobTimeout, s.syncer, s.log)
}

// Shutdown stops the cron loop, then drains the worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.log.Info().Msg("Scheduler: initiating graceful shutdown")

	stopped := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn().Msg("Scheduler: timeout waiting for scheduled runs")
	}

	s.pool.ShutdownWithTimeout(timeout)
	s.log.Info().Msg("Scheduler: shutdown complete")
}

// IsQueueFull reports whether err came from a full job queue.
func IsQueueFull(err error) bool {
	return errors.Is(err, ErrQueueFull)
}
