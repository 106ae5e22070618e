package linkedaccount

import (
	"context"
	"errors"
	"time"

	"budgetsync/internal/domain/storage"
	"budgetsync/internal/shared/retry"
)

// Service contains the business logic for linked accounts
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

// NewService creates a new linked account service
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, policy: retry.DefaultPolicy(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the account or refreshes its YNAB links. Registering the
// same identity twice yields the same id and a single stored account.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	acc := NewAccount(params, s.now().UTC())

	saved, err := retry.DoValue(ctx, s.policy, func() (*Account, error) {
		a, err := s.repo.Upsert(ctx, acc)
		return a, storage.Retryable(err)
	})
	if err != nil {
		return nil, storage.Wrap("linked_accounts.upsert", err)
	}
	return saved, nil
}

// Get returns the account, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, accountID string) (*Account, error) {
	acc, err := retry.DoValue(ctx, s.policy, func() (*Account, error) {
		a, err := s.repo.GetByID(ctx, accountID)
		if errors.Is(err, ErrAccountNotFound) {
			return nil, retry.Permanent(err)
		}
		return a, err
	})
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap("linked_accounts.get", err)
	}
	return acc, nil
}

// ListAll returns every linked account.
func (s *Service) ListAll(ctx context.Context) ([]*Account, error) {
	accounts, err := retry.DoValue(ctx, s.policy, func() ([]*Account, error) {
		return s.repo.List(ctx)
	})
	if err != nil {
		return nil, storage.Wrap("linked_accounts.list", err)
	}
	return accounts, nil
}
