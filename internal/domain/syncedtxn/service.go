package syncedtxn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"budgetsync/internal/domain/storage"
	"budgetsync/internal/shared/retry"
)

// Service owns the expense to YNAB transaction mappings.
type Service struct {
	repo   Repository
	policy retry.Policy
	now    func() time.Time
	log    zerolog.Logger
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

// WithLogger sets the logger used for the rollback path.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a new synced transaction service
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: retry.DefaultPolicy(),
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "synced_transactions").Logger()
	return s
}

// Create records a new mapping touched by params.SyncRecordID.
func (s *Service) Create(ctx context.Context, params CreateParams) (*SyncedTransaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	txn := &SyncedTransaction{
		AccountID:            params.AccountID,
		ExpenseID:            params.ExpenseID,
		Type:                 TypeForAmount(params.Amount),
		Amount:               params.Amount,
		IsPayment:            params.IsPayment,
		YnabTransactionID:    params.YnabTransactionID,
		RelatedSyncRecordIDs: []string{params.SyncRecordID},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.insert(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// GetByExpenseID returns the mapping of an expense, or nil when the expense
// was never projected. More than one row is reported as ErrDuplicateMapping.
func (s *Service) GetByExpenseID(ctx context.Context, expenseID int64, accountID string) (*SyncedTransaction, error) {
	rows, err := retry.DoValue(ctx, s.policy, func() ([]Row, error) {
		return s.repo.ListByExpenseID(ctx, accountID, expenseID)
	})
	if err != nil {
		return nil, storage.Wrap("synced_transactions.get", err)
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return FromRow(rows[0]), nil
	default:
		return nil, &DuplicateMappingError{AccountID: accountID, ExpenseID: expenseID, Count: len(rows)}
	}
}

// ListByAccount returns every mapping of the account.
func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]*SyncedTransaction, error) {
	rows, err := retry.DoValue(ctx, s.policy, func() ([]Row, error) {
		return s.repo.ListByAccount(ctx, accountID)
	})
	if err != nil {
		return nil, storage.Wrap("synced_transactions.list", err)
	}

	txns := make([]*SyncedTransaction, 0, len(rows))
	for _, r := range rows {
		txns = append(txns, FromRow(r))
	}
	return txns, nil
}

// UpdateByExpenseID applies an expense update to its mapping. When the new
// amount flips the credit/debit type the mapping moves to a new key: the
// replacement is stored first, then the old row is deleted.
func (s *Service) UpdateByExpenseID(ctx context.Context, expenseID int64, accountID string, params UpdateParams) (*SyncedTransaction, error) {
	current, err := s.GetByExpenseID(ctx, expenseID, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: expense %d of account %s", ErrMappingNotFound, expenseID, accountID)
	}

	next := current.clone()
	next.Amount = params.Amount
	next.Type = TypeForAmount(params.Amount)
	if params.YnabTransactionID != "" {
		next.YnabTransactionID = params.YnabTransactionID
	}
	if params.Restore {
		next.DeletedAt = nil
	}
	next.touch(params.SyncRecordID, s.now().UTC())

	if next.Type != current.Type {
		return s.replace(ctx, current, next)
	}

	if err := s.update(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// SoftDelete marks the expense's mapping deleted. Deleting an already
// deleted mapping returns it unchanged.
func (s *Service) SoftDelete(ctx context.Context, expenseID int64, accountID, syncRecordID string) (*SyncedTransaction, error) {
	current, err := s.GetByExpenseID(ctx, expenseID, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: expense %d of account %s", ErrMappingNotFound, expenseID, accountID)
	}
	if current.IsDeleted() {
		return current, nil
	}

	now := s.now().UTC()
	next := current.clone()
	next.DeletedAt = &now
	next.touch(syncRecordID, now)

	if err := s.update(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// DeleteByExpenseAndCreatedAt hard-deletes the row stored under key. It backs
// the credit/debit rollback path only; a missing row is not an error.
func (s *Service) DeleteByExpenseAndCreatedAt(ctx context.Context, key Key) error {
	err := retry.Do(ctx, s.policy, func() error {
		return storage.Retryable(s.repo.Delete(ctx, key))
	})
	if errors.Is(err, storage.ErrConditionFailed) {
		return nil
	}
	return storage.Wrap("synced_transactions.delete", err)
}

func (s *Service) replace(ctx context.Context, current, next *SyncedTransaction) (*SyncedTransaction, error) {
	log := s.log.With().
		Str("account_id", current.AccountID).
		Int64("expense_id", current.ExpenseID).
		Str("from_type", string(current.Type)).
		Str("to_type", string(next.Type)).
		Logger()

	if err := s.insert(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to store replacement synced transaction: %w", err)
	}

	deleteErr := s.DeleteByExpenseAndCreatedAt(ctx, current.Key())
	if deleteErr == nil {
		log.Debug().Msg("Synced transaction type changed")
		return next, nil
	}

	log.Error().Err(deleteErr).Str("key", current.Key().String()).
		Msg("Failed to delete replaced synced transaction, rolling back replacement")

	compErr := s.DeleteByExpenseAndCreatedAt(ctx, next.Key())
	if compErr != nil {
		log.Warn().Err(compErr).Msg("Rollback of replacement failed, retrying once")
		compErr = s.DeleteByExpenseAndCreatedAt(ctx, next.Key())
	}
	if compErr != nil {
		log.Error().Err(compErr).Str("replacement", next.Key().String()).
			Msg("Rollback failed, duplicate synced transaction left for manual reconciliation")
		return nil, &CompensationError{
			AccountID:    current.AccountID,
			ExpenseID:    current.ExpenseID,
			Kept:         current.Key(),
			Replacement:  next.Key(),
			Original:     deleteErr,
			Compensation: compErr,
		}
	}

	return nil, fmt.Errorf("failed to delete replaced synced transaction %s: %w", current.Key(), deleteErr)
}

func (s *Service) insert(ctx context.Context, txn *SyncedTransaction) error {
	row := ToRow(txn)
	err := retry.Do(ctx, s.policy, func() error {
		return storage.Retryable(s.repo.Insert(ctx, row))
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return &DuplicateMappingError{AccountID: txn.AccountID, ExpenseID: txn.ExpenseID}
	}
	return storage.Wrap("synced_transactions.insert", err)
}

func (s *Service) update(ctx context.Context, txn *SyncedTransaction) error {
	row := ToRow(txn)
	err := retry.Do(ctx, s.policy, func() error {
		return storage.Retryable(s.repo.Update(ctx, row))
	})
	if errors.Is(err, storage.ErrConditionFailed) {
		return fmt.Errorf("%w: %s", ErrMappingNotFound, row.Key())
	}
	return storage.Wrap("synced_transactions.update", err)
}
