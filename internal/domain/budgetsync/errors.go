package budgetsync

import (
	"errors"
	"fmt"
	"strings"

	"budgetsync/internal/domain/linkedaccount"
	"budgetsync/internal/domain/storage"
	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/infrastructure/splitwise"
	"budgetsync/internal/infrastructure/ynab"
)

// Domain errors
var (
	ErrAccountNotFound           = errors.New("linked account not found")
	ErrSyncInProgress            = errors.New("sync already in progress")
	ErrInvalidSharesCount        = errors.New("expense must have exactly two shares")
	ErrShareNotFound             = errors.New("share not found for expense")
	ErrCreatedExpenseForExisting = errors.New("created expense already has a synced transaction")
)

// AccountNotFoundError reports a sync for an unknown linked account.
type AccountNotFoundError struct {
	AccountID string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("linked account %s not found", e.AccountID)
}

func (e *AccountNotFoundError) Is(target error) bool { return target == ErrAccountNotFound }

// SyncInProgressError reports the in-progress runs that blocked a new one.
type SyncInProgressError struct {
	AccountID     string
	SyncRecordIDs []string
}

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("account %s has sync in progress: %s", e.AccountID, strings.Join(e.SyncRecordIDs, ", "))
}

func (e *SyncInProgressError) Is(target error) bool { return target == ErrSyncInProgress }

// InvalidSharesCountError reports an expense that is not split between
// exactly two users.
type InvalidSharesCountError struct {
	AccountID  string
	ExpenseID  int64
	SelfUserID int64
	Count      int
}

func (e *InvalidSharesCountError) Error() string {
	return fmt.Sprintf("expense %d of account %s has %d shares, expected 2", e.ExpenseID, e.AccountID, e.Count)
}

func (e *InvalidSharesCountError) Is(target error) bool { return target == ErrInvalidSharesCount }

// ShareNotFoundError reports a missing self or counterparty share.
type ShareNotFoundError struct {
	AccountID    string
	ExpenseID    int64
	SelfUserID   int64
	Counterparty bool
}

func (e *ShareNotFoundError) Error() string {
	who := fmt.Sprintf("user %d", e.SelfUserID)
	if e.Counterparty {
		who = "counterparty"
	}
	return fmt.Sprintf("share of %s not found in expense %d of account %s", who, e.ExpenseID, e.AccountID)
}

func (e *ShareNotFoundError) Is(target error) bool { return target == ErrShareNotFound }

// CreatedExpenseForExistingError reports an expense classified as created
// although a mapping for it already exists.
type CreatedExpenseForExistingError struct {
	AccountID    string
	ExpenseID    int64
	SyncRecordID string
}

func (e *CreatedExpenseForExistingError) Error() string {
	return fmt.Sprintf("expense %d of account %s is classified as created but is already synced (sync record %s)",
		e.ExpenseID, e.AccountID, e.SyncRecordID)
}

func (e *CreatedExpenseForExistingError) Is(target error) bool {
	return target == ErrCreatedExpenseForExisting
}

// ExpenseError is the failure of one expense inside a run.
type ExpenseError struct {
	AccountID    string
	SyncRecordID string
	ExpenseID    int64
	Err          error
}

func (e *ExpenseError) Error() string {
	return fmt.Sprintf("failed to reconcile expense %d (account %s, sync record %s): %v",
		e.ExpenseID, e.AccountID, e.SyncRecordID, e.Err)
}

func (e *ExpenseError) Unwrap() error { return e.Err }

// RunError aggregates every failed expense of a partitioned run.
type RunError struct {
	AccountID    string
	SyncRecordID string
	Failures     []*ExpenseError
}

func (e *RunError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("sync %s of account %s failed: %v", e.SyncRecordID, e.AccountID, e.Failures[0])
	}
	return fmt.Sprintf("sync %s of account %s failed for %d expenses, first: %v",
		e.SyncRecordID, e.AccountID, len(e.Failures), e.Failures[0])
}

func (e *RunError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// ErrorKind classifies a sync failure for callers at the trigger boundary.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindValidation   ErrorKind = "validation"
	KindTransient    ErrorKind = "transient"
	KindCompensation ErrorKind = "compensation"
	KindInternal     ErrorKind = "internal"
)

// KindOf returns the kind of err. A RunError takes the kind of its first
// failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var runErr *RunError
	if errors.As(err, &runErr) && len(runErr.Failures) > 0 {
		return KindOf(runErr.Failures[0].Err)
	}

	var swErr *splitwise.APIError
	var ynabErr *ynab.APIError

	switch {
	case errors.Is(err, syncedtxn.ErrCompensationFailed):
		return KindCompensation
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, linkedaccount.ErrAccountNotFound),
		errors.Is(err, syncrecord.ErrRecordNotFound),
		errors.Is(err, syncedtxn.ErrMappingNotFound):
		return KindNotFound
	case errors.Is(err, ErrSyncInProgress),
		errors.Is(err, syncedtxn.ErrDuplicateMapping),
		errors.Is(err, syncrecord.ErrDuplicateRecord):
		return KindConflict
	case errors.Is(err, ErrInvalidSharesCount),
		errors.Is(err, ErrShareNotFound),
		errors.Is(err, ErrCreatedExpenseForExisting),
		errors.Is(err, linkedaccount.ErrInvalidInput),
		errors.Is(err, syncedtxn.ErrInvalidInput):
		return KindValidation
	case errors.Is(err, storage.ErrStore),
		errors.As(err, &swErr),
		errors.As(err, &ynabErr):
		return KindTransient
	default:
		return KindInternal
	}
}
