package syncrecord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetsync/internal/domain/storage"
	"budgetsync/internal/shared/retry"
)

// Service owns the sync run log of every linked account.
type Service struct {
	repo   Repository
	policy retry.Policy
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new sync record service
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, policy: retry.DefaultPolicy(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new ready record for the account.
func (s *Service) Create(ctx context.Context, accountID string) (*Record, error) {
	rec := NewRecord(accountID, s.now())

	err := retry.Do(ctx, s.policy, func() error {
		return storage.Retryable(s.repo.Insert(ctx, rec))
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("%w: %s for account %s", ErrDuplicateRecord, rec.ID, accountID)
	}
	if err != nil {
		return nil, storage.Wrap("sync_records.insert", err)
	}
	return rec, nil
}

// GetInProgress returns the account's in-progress records.
func (s *Service) GetInProgress(ctx context.Context, accountID string) ([]*Record, error) {
	return s.listByStatus(ctx, accountID, StatusInProgress)
}

// GetMostRecentCompleted returns the newest completed record, or nil when the
// account has never completed a run.
func (s *Service) GetMostRecentCompleted(ctx context.Context, accountID string) (*Record, error) {
	records, err := s.listByStatus(ctx, accountID, StatusCompleted)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	latest := records[0]
	if err := latest.CheckInvariant(); err != nil {
		return nil, err
	}
	return latest, nil
}

// GetByID returns the record, or nil when it does not exist.
func (s *Service) GetByID(ctx context.Context, id, accountID string) (*Record, error) {
	records, err := retry.DoValue(ctx, s.policy, func() ([]*Record, error) {
		return s.repo.ListByID(ctx, accountID, id)
	})
	if err != nil {
		return nil, storage.Wrap("sync_records.get", err)
	}

	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("%w: %d records with id %s for account %s", ErrDuplicateRecord, len(records), id, accountID)
	}
}

// ListRecent returns up to limit records, newest first.
func (s *Service) ListRecent(ctx context.Context, accountID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	records, err := retry.DoValue(ctx, s.policy, func() ([]*Record, error) {
		return s.repo.ListRecent(ctx, accountID, limit)
	})
	if err != nil {
		return nil, storage.Wrap("sync_records.list", err)
	}
	return records, nil
}

// UpdateStatus moves a record to status. completedAt is set only when the new
// status is completed.
func (s *Service) UpdateStatus(ctx context.Context, id, accountID string, status Status) (*Record, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	current, err := s.GetByID(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s for account %s", ErrRecordNotFound, id, accountID)
	}
	if err := current.CheckInvariant(); err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s for record %s", ErrInvalidTransition, current.Status, status, id)
	}

	next := current.WithStatus(status, s.now())
	err = retry.Do(ctx, s.policy, func() error {
		return storage.Retryable(s.repo.Update(ctx, next))
	})
	if errors.Is(err, storage.ErrConditionFailed) {
		return nil, fmt.Errorf("%w: %s for account %s", ErrRecordNotFound, id, accountID)
	}
	if err != nil {
		return nil, storage.Wrap("sync_records.update", err)
	}
	return next, nil
}

func (s *Service) listByStatus(ctx context.Context, accountID string, status Status) ([]*Record, error) {
	records, err := retry.DoValue(ctx, s.policy, func() ([]*Record, error) {
		return s.repo.ListByStatus(ctx, accountID, status)
	})
	if err != nil {
		return nil, storage.Wrap("sync_records.list_by_status", err)
	}
	return records, nil
}
