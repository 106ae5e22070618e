package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"budgetsync/internal/domain/budgetsync"
)

// SyncJob runs one account sync on the worker pool.
type SyncJob struct {
	accountID string
	batchID   string
	opts      budgetsync.Options
	timeout   time.Duration
	syncer    budgetsync.Syncer
	log       zerolog.Logger
}

// NewSyncJob creates a sync job for accountID. batchID groups the jobs of one
// trigger in the logs.
func NewSyncJob(accountID, batchID string, opts budgetsync.Options, timeout time.Duration, syncer budgetsync.Syncer, log zerolog.Logger) *SyncJob {
	return &SyncJob{
		accountID: accountID,
		batchID:   batchID,
		opts:      opts,
		timeout:   timeout,
		syncer:    syncer,
		log:       log,
	}
}

// Execute runs the sync and logs its outcome.
func (j *SyncJob) Execute(ctx context.Context) error {
	log := j.log.With().Str("account_id", j.accountID).Str("batch_id", j.batchID).Logger()

	result, err := j.syncer.Sync(ctx, j.accountID, j.opts)
	if err != nil {
		log.Error().Err(err).Str("kind", string(budgetsync.KindOf(err))).Msg("Account sync failed")
		return fmt.Errorf("sync failed: %w", err)
	}

	counts := make(map[budgetsync.ResultKind]int)
	for _, r := range result.Results {
		counts[r.Kind]++
	}
	log.Info().
		Str("sync_record_id", result.SyncRecordID).
		Int("fetched", result.Fetched).
		Int("created", counts[budgetsync.ResultCreated]).
		Int("updated", counts[budgetsync.ResultUpdated]).
		Int("deleted", counts[budgetsync.ResultDeleted]).
		Msg("Account sync completed")
	return nil
}

func (j *SyncJob) AccountID() string { return j.accountID }

func (j *SyncJob) BatchID() string { return j.batchID }

func (j *SyncJob) Description() string {
	return fmt.Sprintf("Budget sync for account %s", j.accountID)
}

func (j *SyncJob) Timeout() time.Duration { return j.timeout }
