package budgetsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"budgetsync/internal/domain/linkedaccount"
	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/infrastructure/memory"
	"budgetsync/internal/infrastructure/splitwise"
	"budgetsync/internal/infrastructure/ynab"
	"budgetsync/internal/shared/retry"
)

const (
	selfUserID         = 10
	counterpartyUserID = 20
	groupID            = 42
)

// MockSplitwise is a mock implementation of splitwise.ClientInterface
type MockSplitwise struct {
	mu       sync.Mutex
	Expenses []splitwise.Expense
	Calls    []splitwise.ListExpensesOptions

	ListExpensesFunc func(ctx context.Context, groupID int64, opts splitwise.ListExpensesOptions) ([]splitwise.Expense, error)
}

func (m *MockSplitwise) ListExpenses(ctx context.Context, groupID int64, opts splitwise.ListExpensesOptions) ([]splitwise.Expense, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, opts)
	expenses := m.Expenses
	m.mu.Unlock()

	if m.ListExpensesFunc != nil {
		return m.ListExpensesFunc(ctx, groupID, opts)
	}
	return expenses, nil
}

func (m *MockSplitwise) GetCurrentUser(ctx context.Context) (*splitwise.User, error) {
	return &splitwise.User{ID: selfUserID, FirstName: "Ana"}, nil
}

func (m *MockSplitwise) lastCall() splitwise.ListExpensesOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[len(m.Calls)-1]
}

// fakeLedger is an in-memory YNAB budget.
type fakeLedger struct {
	mu      sync.Mutex
	nextID  int
	txns    map[string]ynab.Transaction
	creates int
	updates int
	deletes int

	CreateErr error
	DeleteErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{txns: make(map[string]ynab.Transaction)}
}

func (l *fakeLedger) CreateTransaction(ctx context.Context, budgetID string, txn ynab.SaveTransaction) (*ynab.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creates++
	if l.CreateErr != nil {
		return nil, l.CreateErr
	}
	l.nextID++
	memo := txn.Memo
	payee := txn.PayeeName
	out := ynab.Transaction{
		ID:        fmt.Sprintf("ynab-%d", l.nextID),
		Date:      txn.Date,
		Amount:    txn.Amount,
		Memo:      &memo,
		PayeeName: &payee,
		AccountID: txn.AccountID,
	}
	l.txns[out.ID] = out
	return &out, nil
}

func (l *fakeLedger) UpdateTransaction(ctx context.Context, budgetID, transactionID string, txn ynab.SaveTransaction) (*ynab.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates++
	existing, ok := l.txns[transactionID]
	if !ok {
		return nil, &ynab.APIError{StatusCode: 404, ErrorDetail: ynab.ErrorDetail{ID: "404.2", Name: "resource_not_found"}}
	}
	memo := txn.Memo
	payee := txn.PayeeName
	existing.Amount = txn.Amount
	existing.Date = txn.Date
	existing.Memo = &memo
	existing.PayeeName = &payee
	l.txns[transactionID] = existing
	return &existing, nil
}

func (l *fakeLedger) DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*ynab.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletes++
	if l.DeleteErr != nil {
		return nil, l.DeleteErr
	}
	existing, ok := l.txns[transactionID]
	if !ok {
		return nil, &ynab.APIError{StatusCode: 404, ErrorDetail: ynab.ErrorDetail{ID: "404.2", Name: "resource_not_found"}}
	}
	delete(l.txns, transactionID)
	existing.Deleted = true
	return &existing, nil
}

func (l *fakeLedger) get(id string) (ynab.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txns[id]
	return t, ok
}

func (l *fakeLedger) counts() (creates, updates, deletes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates, l.updates, l.deletes
}

// tickingClock returns a clock that advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

type harness struct {
	accountRepo *memory.LinkedAccountRepository
	recordRepo  *memory.SyncRecordRepository
	syncedRepo  *memory.SyncedTransactionRepository

	accounts *linkedaccount.Service
	records  *syncrecord.Service
	synced   *syncedtxn.Service

	splitwise *MockSplitwise
	ledger    *fakeLedger
	engine    *Engine
	account   *linkedaccount.Account
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...EngineOption) *harness {
	t.Helper()

	policy := retry.Policy{InitialDelay: time.Millisecond, Factor: 1, MaxRetries: 3}
	clock := tickingClock(baseTime.Add(24 * time.Hour))

	h := &harness{
		accountRepo: memory.NewLinkedAccountRepository(),
		recordRepo:  memory.NewSyncRecordRepository(),
		syncedRepo:  memory.NewSyncedTransactionRepository(),
		splitwise:   &MockSplitwise{},
		ledger:      newFakeLedger(),
	}
	h.accounts = linkedaccount.NewService(h.accountRepo, linkedaccount.WithRetryPolicy(policy))
	h.records = syncrecord.NewService(h.recordRepo, syncrecord.WithRetryPolicy(policy), syncrecord.WithClock(clock))
	h.synced = syncedtxn.NewService(h.syncedRepo, syncedtxn.WithRetryPolicy(policy), syncedtxn.WithClock(clock))
	h.engine = NewEngine(h.accounts, h.records, h.synced, h.splitwise, h.ledger, opts...)

	acc, err := h.accounts.Register(context.Background(), linkedaccount.RegisterParams{
		Email:                       "ana@example.com",
		SplitwiseGroupID:            groupID,
		SplitwiseUserID:             selfUserID,
		YnabBudgetID:                "budget",
		YnabAccountID:               "checking",
		YnabUncategorizedCategoryID: "uncategorized",
	})
	require.NoError(t, err)
	h.account = acc
	return h
}

func (h *harness) rows(t *testing.T) []syncedtxn.Row {
	t.Helper()
	return h.syncedRepo.Rows()
}

// expense builds a two-party expense with the self net balance given as a
// decimal dollar string.
func expense(id int64, selfNet string, created, updated time.Time) splitwise.Expense {
	counterNet := "-" + selfNet
	if len(selfNet) > 0 && selfNet[0] == '-' {
		counterNet = selfNet[1:]
	}
	return splitwise.Expense{
		ID:          id,
		Description: "Grocery run",
		Cost:        "24.00",
		Date:        created,
		CreatedAt:   created,
		UpdatedAt:   updated,
		Category:    &splitwise.Category{ID: 12, Name: "Groceries"},
		Users: []splitwise.Share{
			{UserID: selfUserID, User: &splitwise.User{ID: selfUserID, FirstName: "Ana"}, NetBalance: selfNet},
			{UserID: counterpartyUserID, User: &splitwise.User{ID: counterpartyUserID, FirstName: "Bruno", LastName: "Lima"}, NetBalance: counterNet},
		},
	}
}
