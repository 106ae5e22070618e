package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/domain/linkedaccount"
	"budgetsync/internal/domain/storage"
	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/shared/retry"
)

func TestLinkedAccounts_RegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewLinkedAccountRepository()
	svc := linkedaccount.NewService(repo)

	params := linkedaccount.RegisterParams{
		Email:                       "owner@example.com",
		SplitwiseGroupID:            42,
		SplitwiseUserID:             10,
		YnabBudgetID:                "budget",
		YnabAccountID:               "checking",
		YnabUncategorizedCategoryID: "uncategorized",
	}

	first, err := svc.Register(ctx, params)
	require.NoError(t, err)

	params.Email = "Owner@Example.com"
	params.YnabAccountID = "savings"
	second, err := svc.Register(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.Len())
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	stored, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "savings", stored.YnabAccountID)
}

func TestLinkedAccounts_GetUnknown(t *testing.T) {
	svc := linkedaccount.NewService(NewLinkedAccountRepository())

	acc, err := svc.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, acc)
}

func TestSyncRecords_ListOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncRecordRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, syncrecord.NewRecord("acc", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.Insert(ctx, syncrecord.NewRecord("other", base)))

	recent, err := repo.ListRecent(ctx, "acc", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(2*time.Hour), recent[0].CreatedAt)
	assert.Equal(t, base.Add(time.Hour), recent[1].CreatedAt)

	dup := syncrecord.NewRecord("acc", base)
	assert.ErrorIs(t, repo.Insert(ctx, dup), storage.ErrDuplicateKey)
}

func TestSyncRecords_ServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := syncrecord.NewService(NewSyncRecordRepository())

	rec, err := svc.Create(ctx, "acc")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, rec.ID, "acc", syncrecord.StatusInProgress)
	require.NoError(t, err)

	inProgress, err := svc.GetInProgress(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, inProgress, 1)

	done, err := svc.UpdateStatus(ctx, rec.ID, "acc", syncrecord.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)

	latest, err := svc.GetMostRecentCompleted(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, latest.ID)

	_, err = svc.UpdateStatus(ctx, "missing", "acc", syncrecord.StatusError)
	assert.ErrorIs(t, err, syncrecord.ErrRecordNotFound)
}

func TestSyncedTransactions_TypeChangeUnderInjectedDeleteFailures(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncedTransactionRepository()
	svc := syncedtxn.NewService(repo, syncedtxn.WithRetryPolicy(retry.Policy{InitialDelay: time.Millisecond, Factor: 1, MaxRetries: 3}))

	_, err := svc.Create(ctx, syncedtxn.CreateParams{
		AccountID:         "acc",
		ExpenseID:         1,
		Amount:            -12000,
		YnabTransactionID: "ynab-1",
		SyncRecordID:      "sr-1",
	})
	require.NoError(t, err)

	repo.SetHook(FailTimes(OpDelete, 3, errors.New("throttled")))

	updated, err := svc.UpdateByExpenseID(ctx, 1, "acc", syncedtxn.UpdateParams{Amount: 12000, SyncRecordID: "sr-2"})
	require.NoError(t, err)
	assert.Equal(t, syncedtxn.TypeCredit, updated.Type)

	rows := repo.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, syncedtxn.TypeCredit, rows[0].Type)
	assert.Equal(t, []string{"sr-1", "sr-2"}, rows[0].RelatedSyncRecordIDs)
}

func TestSyncedTransactions_CompensationFailureLeavesBothRows(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncedTransactionRepository()
	svc := syncedtxn.NewService(repo, syncedtxn.WithRetryPolicy(retry.NoRetry()))

	_, err := svc.Create(ctx, syncedtxn.CreateParams{
		AccountID:         "acc",
		ExpenseID:         1,
		Amount:            -12000,
		YnabTransactionID: "ynab-1",
		SyncRecordID:      "sr-1",
	})
	require.NoError(t, err)

	repo.SetHook(func(op string, _ any) error {
		if op == OpDelete {
			return errors.New("store unavailable")
		}
		return nil
	})

	_, err = svc.UpdateByExpenseID(ctx, 1, "acc", syncedtxn.UpdateParams{Amount: 12000, SyncRecordID: "sr-2"})
	require.ErrorIs(t, err, syncedtxn.ErrCompensationFailed)
	assert.Len(t, repo.Rows(), 2)

	repo.SetHook(nil)
	_, err = svc.GetByExpenseID(ctx, 1, "acc")
	assert.ErrorIs(t, err, syncedtxn.ErrDuplicateMapping)
}

func TestSyncedTransactions_CopiesAreIndependent(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncedTransactionRepository()

	row := syncedtxn.Row{AccountID: "acc", ExpenseID: 1, Type: syncedtxn.TypeDebit, CreatedDate: "2024-01-01", RelatedSyncRecordIDs: []string{"a"}}
	require.NoError(t, repo.Insert(ctx, row))
	row.RelatedSyncRecordIDs[0] = "mutated"

	rows, err := repo.ListByExpenseID(ctx, "acc", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"a"}, rows[0].RelatedSyncRecordIDs)

	assert.ErrorIs(t, repo.Delete(ctx, syncedtxn.Key{AccountID: "acc", ExpenseID: 2}), storage.ErrConditionFailed)
	assert.ErrorIs(t, repo.Insert(ctx, rows[0]), storage.ErrDuplicateKey)
}
