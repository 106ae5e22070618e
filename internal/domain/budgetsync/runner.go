package budgetsync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"budgetsync/internal/domain/linkedaccount"
)

// AccountLister lists every linked account.
type AccountLister interface {
	ListAll(ctx context.Context) ([]*linkedaccount.Account, error)
}

// Syncer runs one account sync. *Engine implements it.
type Syncer interface {
	Sync(ctx context.Context, accountID string, opts Options) (*RunResult, error)
}

// Runner syncs every linked account.
type Runner struct {
	accounts    AccountLister
	syncer      Syncer
	concurrency int
	log         zerolog.Logger
}

// NewRunner creates a runner syncing up to concurrency accounts at once.
func NewRunner(accounts AccountLister, syncer Syncer, concurrency int, log zerolog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		accounts:    accounts,
		syncer:      syncer,
		concurrency: concurrency,
		log:         log.With().Str("component", "sync_runner").Logger(),
	}
}

// SyncAll runs a sync for every linked account. A failing account never stops
// the others; its error is reported in its outcome.
func (r *Runner) SyncAll(ctx context.Context, opts Options) ([]AccountOutcome, error) {
	accounts, err := r.accounts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	outcomes := make([]AccountOutcome, len(accounts))
	g := &errgroup.Group{}
	g.SetLimit(r.concurrency)

	for i, acc := range accounts {
		g.Go(func() error {
			result, err := r.syncer.Sync(ctx, acc.ID, opts)
			outcomes[i] = AccountOutcome{AccountID: acc.ID, Result: result, Err: err}
			if err != nil {
				r.log.Warn().Err(err).Str("account_id", acc.ID).Str("kind", string(KindOf(err))).Msg("Account sync failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []AccountOutcome) []AccountOutcome {
	var failed []AccountOutcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
