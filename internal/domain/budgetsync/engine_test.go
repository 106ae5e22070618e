package budgetsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/domain/currency"
	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/infrastructure/memory"
	"budgetsync/internal/infrastructure/splitwise"
)

func TestEngine_Sync_CreateThenRerun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	e1 := expense(1, "12.00", baseTime, baseTime)
	h.splitwise.Expenses = []splitwise.Expense{e1}

	first, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, syncrecord.StatusCompleted, first.Status)
	require.Len(t, first.Results, 1)

	created := first.Results[0]
	assert.Equal(t, ResultCreated, created.Kind)
	require.NotNil(t, created.SyncedTransaction)
	assert.Equal(t, currency.Milliunits(12000), created.SyncedTransaction.Amount)
	assert.Equal(t, syncedtxn.TypeCredit, created.SyncedTransaction.Type)

	txn, ok := h.ledger.get(created.SyncedTransaction.YnabTransactionID)
	require.True(t, ok)
	assert.Equal(t, currency.Milliunits(12000), txn.Amount)
	assert.Equal(t, "Bruno Lima", *txn.PayeeName)
	assert.Equal(t, "2024-05-01", txn.Date)

	// Same expense seen again after an edit that kept the amount.
	e1.UpdatedAt = baseTime.Add(time.Hour)
	h.splitwise.Expenses = []splitwise.Expense{e1}

	second, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.Equal(t, ResultUpdated, second.Results[0].Kind)

	creates, updates, _ := h.ledger.counts()
	assert.Equal(t, 1, creates, "re-run must not create a second budget transaction")
	assert.Equal(t, 1, updates)

	rows := h.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(12000), rows[0].Amount)
	assert.Equal(t, created.SyncedTransaction.YnabTransactionID, rows[0].YnabTransactionID)
	assert.Equal(t, []string{first.SyncRecordID, second.SyncRecordID}, rows[0].RelatedSyncRecordIDs)
}

func TestEngine_Sync_AccountNotFound(t *testing.T) {
	h := newHarness(t)

	result, err := h.engine.Sync(context.Background(), "missing", Options{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestEngine_Sync_RejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	running := syncrecord.NewRecord(h.account.ID, baseTime)
	running.Status = syncrecord.StatusInProgress
	h.recordRepo.Put(*running)

	result, err := h.engine.Sync(ctx, h.account.ID, Options{})
	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, KindConflict, KindOf(err))

	var inProgress *SyncInProgressError
	require.True(t, errors.As(err, &inProgress))
	assert.Equal(t, []string{running.ID}, inProgress.SyncRecordIDs)

	records, err := h.records.ListRecent(ctx, h.account.ID, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1, "no new record may be created")
	assert.Empty(t, h.splitwise.Calls)
}

func TestEngine_Sync_InvalidSharesCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	bad := expense(7, "10.00", baseTime, baseTime)
	bad.Users = append(bad.Users, splitwise.Share{UserID: 30, NetBalance: "0.00"})
	h.splitwise.Expenses = []splitwise.Expense{bad}

	result, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.ErrorIs(t, err, ErrInvalidSharesCount)
	assert.Equal(t, KindValidation, KindOf(err))

	var shareErr *InvalidSharesCountError
	require.True(t, errors.As(err, &shareErr))
	assert.Equal(t, 3, shareErr.Count)
	assert.Equal(t, int64(7), shareErr.ExpenseID)

	require.NotNil(t, result)
	assert.Equal(t, syncrecord.StatusError, result.Status)
	assert.Empty(t, result.Results)

	creates, updates, deletes := h.ledger.counts()
	assert.Zero(t, creates+updates+deletes)
	assert.Empty(t, h.rows(t))

	stored, err := h.records.GetByID(ctx, result.SyncRecordID, h.account.ID)
	require.NoError(t, err)
	assert.Equal(t, syncrecord.StatusError, stored.Status)
	assert.Nil(t, stored.CompletedAt)
}

func TestEngine_Sync_ShareNotFound(t *testing.T) {
	tests := []struct {
		name             string
		users            []int64
		wantCounterparty bool
	}{
		{"self missing", []int64{20, 30}, false},
		{"counterparty missing", []int64{selfUserID, selfUserID}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			e := expense(3, "5.00", baseTime, baseTime)
			e.Users[0].UserID = tt.users[0]
			e.Users[1].UserID = tt.users[1]
			h.splitwise.Expenses = []splitwise.Expense{e}

			_, err := h.engine.Sync(context.Background(), h.account.ID, Options{})
			require.ErrorIs(t, err, ErrShareNotFound)

			var notFound *ShareNotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, tt.wantCounterparty, notFound.Counterparty)
		})
	}
}

func TestEngine_Sync_CreatedExpenseForExisting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	e := expense(1, "12.00", baseTime, baseTime)
	h.splitwise.Expenses = []splitwise.Expense{e}
	_, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)

	_, err = h.engine.Sync(ctx, h.account.ID, Options{})
	assert.ErrorIs(t, err, ErrCreatedExpenseForExisting)
	assert.Len(t, h.rows(t), 1)
}

func TestEngine_Sync_DeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	t.Run("deleted before ever synced is skipped", func(t *testing.T) {
		deletedAt := baseTime.Add(time.Minute)
		e := expense(5, "3.00", baseTime, deletedAt)
		e.DeletedAt = &deletedAt
		h.splitwise.Expenses = []splitwise.Expense{e}

		result, err := h.engine.Sync(ctx, h.account.ID, Options{})
		require.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.Equal(t, ResultSkipDeleted, result.Results[0].Kind)
		assert.Empty(t, h.rows(t))
	})

	e := expense(1, "-8.50", baseTime, baseTime)
	h.splitwise.Expenses = []splitwise.Expense{e}
	created, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	ynabID := created.Results[0].SyncedTransaction.YnabTransactionID

	deletedAt := baseTime.Add(2 * time.Hour)
	e.UpdatedAt = deletedAt
	e.DeletedAt = &deletedAt
	h.splitwise.Expenses = []splitwise.Expense{e}

	t.Run("deleted after sync removes the budget transaction", func(t *testing.T) {
		result, err := h.engine.Sync(ctx, h.account.ID, Options{})
		require.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.Equal(t, ResultDeleted, result.Results[0].Kind)

		_, exists := h.ledger.get(ynabID)
		assert.False(t, exists)

		rows := h.rows(t)
		require.Len(t, rows, 1)
		assert.NotNil(t, rows[0].DeletedAt)
	})

	t.Run("deleted again is skipped", func(t *testing.T) {
		_, _, deletesBefore := h.ledger.counts()

		result, err := h.engine.Sync(ctx, h.account.ID, Options{})
		require.NoError(t, err)
		assert.Equal(t, ResultSkipDeleted, result.Results[0].Kind)

		_, _, deletesAfter := h.ledger.counts()
		assert.Equal(t, deletesBefore, deletesAfter)
	})

	t.Run("restored expense gets a new budget transaction", func(t *testing.T) {
		e.DeletedAt = nil
		e.UpdatedAt = baseTime.Add(3 * time.Hour)
		h.splitwise.Expenses = []splitwise.Expense{e}

		result, err := h.engine.Sync(ctx, h.account.ID, Options{})
		require.NoError(t, err)
		assert.Equal(t, ResultUpdated, result.Results[0].Kind)

		rows := h.rows(t)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].DeletedAt)
		assert.NotEqual(t, ynabID, rows[0].YnabTransactionID)
		_, exists := h.ledger.get(rows[0].YnabTransactionID)
		assert.True(t, exists)
	})
}

func TestEngine_Sync_DeleteToleratesMissingBudgetTransaction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	e := expense(1, "4.00", baseTime, baseTime)
	h.splitwise.Expenses = []splitwise.Expense{e}
	created, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)

	// Removed by hand in YNAB.
	_, err = h.ledger.DeleteTransaction(ctx, "budget", created.Results[0].SyncedTransaction.YnabTransactionID)
	require.NoError(t, err)

	deletedAt := baseTime.Add(time.Hour)
	e.UpdatedAt = deletedAt
	e.DeletedAt = &deletedAt
	h.splitwise.Expenses = []splitwise.Expense{e}

	result, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, ResultDeleted, result.Results[0].Kind)
}

func TestEngine_Sync_TypeChangeWithFailingDelete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	e := expense(1, "-12.00", baseTime, baseTime)
	h.splitwise.Expenses = []splitwise.Expense{e}
	_, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)

	rows := h.rows(t)
	require.Len(t, rows, 1)
	require.Equal(t, syncedtxn.TypeDebit, rows[0].Type)

	// The balance flips; the first two deletes of the old row fail.
	flipped := expense(1, "12.00", baseTime, baseTime.Add(time.Hour))
	h.splitwise.Expenses = []splitwise.Expense{flipped}
	h.syncedRepo.SetHook(memory.FailTimes(memory.OpDelete, 2, errors.New("throttled")))

	result, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, ResultUpdated, result.Results[0].Kind)

	rows = h.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, syncedtxn.TypeCredit, rows[0].Type)
	assert.Equal(t, int64(12000), rows[0].Amount)
	assert.Equal(t, baseTime.Add(24*time.Hour).Format(syncedtxn.DateLayout), rows[0].CreatedDate)
}

func TestEngine_Sync_TypeChangeRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	e := expense(1, "-12.00", baseTime, baseTime)
	h.splitwise.Expenses = []splitwise.Expense{e}
	_, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	before := h.rows(t)

	debitKey := before[0].Key()
	h.syncedRepo.SetHook(func(op string, key any) error {
		if op == memory.OpDelete && key == debitKey {
			return errors.New("store unavailable")
		}
		return nil
	})

	h.splitwise.Expenses = []splitwise.Expense{expense(1, "12.00", baseTime, baseTime.Add(time.Hour))}
	_, err = h.engine.Sync(ctx, h.account.ID, Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, syncedtxn.ErrCompensationFailed)

	after := h.rows(t)
	require.Len(t, after, 1)
	assert.Equal(t, syncedtxn.TypeDebit, after[0].Type, "replacement must be rolled back")
}

func TestEngine_Sync_Window(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.engine.Sync(ctx, h.account.ID, Options{Limit: 100})
	require.NoError(t, err)
	assert.Nil(t, first.Since)
	assert.Nil(t, h.splitwise.lastCall().UpdatedAfter)
	assert.Equal(t, 100, h.splitwise.lastCall().Limit)

	completed, err := h.records.GetMostRecentCompleted(ctx, h.account.ID)
	require.NoError(t, err)
	require.NotNil(t, completed)

	_, err = h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	require.NotNil(t, h.splitwise.lastCall().UpdatedAfter)
	assert.True(t, completed.CreatedAt.Equal(*h.splitwise.lastCall().UpdatedAfter))

	explicit := baseTime.Add(-48 * time.Hour)
	_, err = h.engine.Sync(ctx, h.account.ID, Options{Since: &explicit})
	require.NoError(t, err)
	assert.True(t, explicit.Equal(*h.splitwise.lastCall().UpdatedAfter))
}

func TestEngine_Sync_WindowIgnoresFailedRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	completed, err := h.records.GetMostRecentCompleted(ctx, h.account.ID)
	require.NoError(t, err)

	h.splitwise.ListExpensesFunc = func(context.Context, int64, splitwise.ListExpensesOptions) ([]splitwise.Expense, error) {
		return nil, &splitwise.APIError{StatusCode: 503}
	}
	_, err = h.engine.Sync(ctx, h.account.ID, Options{})
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))

	h.splitwise.ListExpensesFunc = nil
	_, err = h.engine.Sync(ctx, h.account.ID, Options{})
	require.NoError(t, err)
	assert.True(t, completed.CreatedAt.Equal(*h.splitwise.lastCall().UpdatedAfter))
}

func TestEngine_Sync_FailurePolicies(t *testing.T) {
	bad := expense(2, "1.00", baseTime, baseTime)
	bad.Users = bad.Users[:1]
	good := expense(1, "12.00", baseTime, baseTime)

	t.Run("partition reports every failure and keeps successes", func(t *testing.T) {
		h := newHarness(t)
		h.splitwise.Expenses = []splitwise.Expense{good, bad}

		result, err := h.engine.Sync(context.Background(), h.account.ID, Options{FailurePolicy: Partition})

		var runErr *RunError
		require.True(t, errors.As(err, &runErr))
		require.Len(t, runErr.Failures, 1)
		assert.Equal(t, int64(2), runErr.Failures[0].ExpenseID)
		assert.Equal(t, result.SyncRecordID, runErr.Failures[0].SyncRecordID)

		require.Len(t, result.Results, 1)
		assert.Equal(t, int64(1), result.Results[0].ExpenseID)
		assert.Equal(t, syncrecord.StatusError, result.Status)
		assert.Len(t, h.rows(t), 1, "successful expenses are not rolled back")
	})

	t.Run("fail fast returns the first failure", func(t *testing.T) {
		h := newHarness(t)
		h.splitwise.Expenses = []splitwise.Expense{bad}

		_, err := h.engine.Sync(context.Background(), h.account.ID, Options{FailurePolicy: FailFast})

		var expErr *ExpenseError
		require.True(t, errors.As(err, &expErr))
		assert.Equal(t, int64(2), expErr.ExpenseID)

		var runErr *RunError
		assert.False(t, errors.As(err, &runErr))
	})
}

func TestEngine_Sync_MaxConcurrency(t *testing.T) {
	h := newHarness(t)
	for i := int64(1); i <= 20; i++ {
		h.splitwise.Expenses = append(h.splitwise.Expenses, expense(i, "2.00", baseTime, baseTime))
	}

	result, err := h.engine.Sync(context.Background(), h.account.ID, Options{MaxConcurrency: 3})
	require.NoError(t, err)
	require.Len(t, result.Results, 20)
	for i, r := range result.Results {
		assert.Equal(t, int64(i+1), r.ExpenseID, "results keep fetch order")
	}
	assert.Len(t, h.rows(t), 20)
}

// failingErrorStatus fails every transition to error.
type failingErrorStatus struct {
	*syncrecord.Service
}

func (f failingErrorStatus) UpdateStatus(ctx context.Context, id, accountID string, status syncrecord.Status) (*syncrecord.Record, error) {
	if status == syncrecord.StatusError {
		return nil, errors.New("store unavailable")
	}
	return f.Service.UpdateStatus(ctx, id, accountID, status)
}

type recordingNotifier struct {
	mu       sync.Mutex
	failures []Failure
}

func (n *recordingNotifier) NotifySyncFailure(ctx context.Context, f Failure) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, f)
	return nil
}

func TestEngine_Sync_ErrorStatusFailureDoesNotMaskCause(t *testing.T) {
	h := newHarness(t)
	notifier := &recordingNotifier{}
	engine := NewEngine(h.accounts, failingErrorStatus{h.records}, h.synced, h.splitwise, h.ledger, WithNotifier(notifier))

	cause := &splitwise.APIError{StatusCode: 500, Message: "boom"}
	h.splitwise.ListExpensesFunc = func(context.Context, int64, splitwise.ListExpensesOptions) ([]splitwise.Expense, error) {
		return nil, cause
	}

	result, err := engine.Sync(context.Background(), h.account.ID, Options{})
	require.ErrorIs(t, err, cause)
	require.NotNil(t, result)

	require.Len(t, notifier.failures, 1)
	assert.Equal(t, result.SyncRecordID, notifier.failures[0].SyncRecordID)
	assert.Equal(t, KindTransient, notifier.failures[0].Kind)
}

func TestClassify(t *testing.T) {
	created := baseTime
	later := baseTime.Add(time.Minute)
	deleted := later

	tests := []struct {
		name    string
		created time.Time
		updated time.Time
		deleted *time.Time
		want    Classification
	}{
		{"same timestamps", created, created, nil, ClassCreated},
		{"updated later", created, later, nil, ClassUpdated},
		{"deleted with same timestamps", created, created, &deleted, ClassDeleted},
		{"deleted after update", created, later, &deleted, ClassDeleted},
		{"same instant other zone", created, created.In(time.FixedZone("X", 3600)), nil, ClassCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := splitwise.Expense{CreatedAt: tt.created, UpdatedAt: tt.updated, DeletedAt: tt.deleted}
			assert.Equal(t, tt.want, Classify(e))
		})
	}
}
