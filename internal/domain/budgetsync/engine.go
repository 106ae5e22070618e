package budgetsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"budgetsync/internal/domain/currency"
	"budgetsync/internal/domain/linkedaccount"
	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/infrastructure/splitwise"
	"budgetsync/internal/infrastructure/ynab"
)

var (
	syncTracer       = otel.Tracer("budgetsync/engine")
	syncMeter        = otel.Meter("budgetsync/engine")
	runsTotal, _     = syncMeter.Int64Counter("budget_sync.runs", metric.WithDescription("Sync runs by final status"))
	expensesTotal, _ = syncMeter.Int64Counter("budget_sync.expenses", metric.WithDescription("Reconciled expenses by result"))
	runDuration, _   = syncMeter.Float64Histogram("budget_sync.run.duration", metric.WithDescription("Sync run duration in seconds"), metric.WithUnit("s"))
)

const errorStatusTimeout = 10 * time.Second

// AccountStore resolves linked accounts.
type AccountStore interface {
	Get(ctx context.Context, accountID string) (*linkedaccount.Account, error)
}

// RecordStore is the run log used by the engine.
type RecordStore interface {
	Create(ctx context.Context, accountID string) (*syncrecord.Record, error)
	GetInProgress(ctx context.Context, accountID string) ([]*syncrecord.Record, error)
	GetMostRecentCompleted(ctx context.Context, accountID string) (*syncrecord.Record, error)
	UpdateStatus(ctx context.Context, id, accountID string, status syncrecord.Status) (*syncrecord.Record, error)
}

// MappingStore holds the expense to budget transaction mappings.
type MappingStore interface {
	Create(ctx context.Context, params syncedtxn.CreateParams) (*syncedtxn.SyncedTransaction, error)
	GetByExpenseID(ctx context.Context, expenseID int64, accountID string) (*syncedtxn.SyncedTransaction, error)
	UpdateByExpenseID(ctx context.Context, expenseID int64, accountID string, params syncedtxn.UpdateParams) (*syncedtxn.SyncedTransaction, error)
	SoftDelete(ctx context.Context, expenseID int64, accountID, syncRecordID string) (*syncedtxn.SyncedTransaction, error)
}

// Failure describes a run that started and then failed.
type Failure struct {
	AccountID    string
	SyncRecordID string
	Kind         ErrorKind
	Err          error
}

// Notifier is told about failed runs.
type Notifier interface {
	NotifySyncFailure(ctx context.Context, f Failure) error
}

// Engine runs sync runs for linked accounts.
type Engine struct {
	accounts AccountStore
	records  RecordStore
	synced   MappingStore
	expenses splitwise.ClientInterface
	budget   ynab.ClientInterface
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithNotifier reports failed runs to n.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides time.Now for result timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a sync engine over the given stores and ledger clients.
func NewEngine(
	accounts AccountStore,
	records RecordStore,
	synced MappingStore,
	expenses splitwise.ClientInterface,
	budget ynab.ClientInterface,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		accounts: accounts,
		records:  records,
		synced:   synced,
		expenses: expenses,
		budget:   budget,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "budget_sync").Logger()
	return e
}

// Sync runs one sync for the account. Once a sync record exists the returned
// RunResult is non-nil, also on failure, and lists the expenses that
// succeeded.
func (e *Engine) Sync(ctx context.Context, accountID string, opts Options) (*RunResult, error) {
	start := time.Now()
	ctx, span := syncTracer.Start(ctx, "budget_sync.sync",
		trace.WithAttributes(attribute.String("budget_sync.account.id", accountID)),
	)
	defer span.End()

	result, err := e.sync(ctx, span, accountID, opts)

	status := string(syncrecord.StatusCompleted)
	if err != nil {
		status = string(syncrecord.StatusError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	runsTotal.Add(ctx, 1, attrs)
	runDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	return result, err
}

func (e *Engine) sync(ctx context.Context, span trace.Span, accountID string, opts Options) (*RunResult, error) {
	account, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account %s: %w", accountID, err)
	}
	if account == nil {
		return nil, &AccountNotFoundError{AccountID: accountID}
	}

	inProgress, err := e.records.GetInProgress(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to check in-progress syncs: %w", err)
	}
	if len(inProgress) > 0 {
		ids := make([]string, len(inProgress))
		for i, r := range inProgress {
			ids[i] = r.ID
		}
		return nil, &SyncInProgressError{AccountID: accountID, SyncRecordIDs: ids}
	}

	record, err := e.records.Create(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync record: %w", err)
	}
	span.SetAttributes(attribute.String("sync_record.id", record.ID))

	log := e.log.With().Str("account_id", accountID).Str("sync_record_id", record.ID).Logger()

	result, err := e.run(ctx, account, record, opts, log)
	if err != nil {
		e.markError(ctx, record, log, err)
		result.Status = syncrecord.StatusError
		return result, err
	}
	return result, nil
}

// run executes a sync whose record is already stored. It always returns a
// result.
func (e *Engine) run(ctx context.Context, account *linkedaccount.Account, record *syncrecord.Record, opts Options, log zerolog.Logger) (*RunResult, error) {
	result := &RunResult{
		AccountID:    account.ID,
		SyncRecordID: record.ID,
		Status:       record.Status,
		Results:      []Result{},
	}

	since := opts.Since
	if since == nil {
		last, err := e.records.GetMostRecentCompleted(ctx, account.ID)
		if err != nil {
			return result, fmt.Errorf("failed to get most recent completed sync: %w", err)
		}
		if last != nil {
			t := last.CreatedAt
			since = &t
		}
	}
	result.Since = since

	expenses, err := e.expenses.ListExpenses(ctx, account.SplitwiseGroupID, splitwise.ListExpensesOptions{
		UpdatedAfter: since,
		Limit:        opts.Limit,
	})
	if err != nil {
		return result, fmt.Errorf("failed to fetch expenses of group %d: %w", account.SplitwiseGroupID, err)
	}
	result.Fetched = len(expenses)

	record, err = e.records.UpdateStatus(ctx, record.ID, account.ID, syncrecord.StatusInProgress)
	if err != nil {
		return result, fmt.Errorf("failed to mark sync in progress: %w", err)
	}
	result.Status = record.Status

	log.Info().Int("expenses", len(expenses)).Interface("since", since).Msg("Sync started")

	results, err := e.reconcileAll(ctx, account, record.ID, expenses, opts)
	result.Results = results
	if err != nil {
		return result, err
	}

	record, err = e.records.UpdateStatus(ctx, record.ID, account.ID, syncrecord.StatusCompleted)
	if err != nil {
		return result, fmt.Errorf("failed to mark sync completed: %w", err)
	}
	result.Status = record.Status

	log.Info().Int("expenses", len(expenses)).Int("results", len(results)).Msg("Sync completed")
	return result, nil
}

// markError moves the record to error. Its own failure is only logged so the
// original error reaches the caller.
func (e *Engine) markError(ctx context.Context, record *syncrecord.Record, log zerolog.Logger, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorStatusTimeout)
	defer cancel()

	log.Error().Err(cause).Msg("Sync failed")

	if _, err := e.records.UpdateStatus(ctx, record.ID, record.AccountID, syncrecord.StatusError); err != nil {
		log.Error().Err(err).Msg("Failed to mark sync record as error")
	}

	if e.notifier == nil {
		return
	}
	failure := Failure{AccountID: record.AccountID, SyncRecordID: record.ID, Kind: KindOf(cause), Err: cause}
	if err := e.notifier.NotifySyncFailure(ctx, failure); err != nil {
		log.Warn().Err(err).Msg("Failed to send sync failure notification")
	}
}

type outcome struct {
	result Result
	err    *ExpenseError
}

func (e *Engine) reconcileAll(ctx context.Context, account *linkedaccount.Account, syncRecordID string, expenses []splitwise.Expense, opts Options) ([]Result, error) {
	failFast := opts.FailurePolicy == FailFast

	var g *errgroup.Group
	runCtx := ctx
	if failFast {
		g, runCtx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	if opts.MaxConcurrency > 0 {
		g.SetLimit(opts.MaxConcurrency)
	}

	outcomes := make([]outcome, len(expenses))
	for i, expense := range expenses {
		g.Go(func() error {
			res, err := e.reconcile(runCtx, account, syncRecordID, expense)
			if err != nil {
				expErr := &ExpenseError{
					AccountID:    account.ID,
					SyncRecordID: syncRecordID,
					ExpenseID:    expense.ID,
					Err:          err,
				}
				outcomes[i].err = expErr
				expensesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
				if failFast {
					return expErr
				}
				return nil
			}
			outcomes[i].result = res
			expensesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(res.Kind))))
			return nil
		})
	}
	firstErr := g.Wait()

	results := make([]Result, 0, len(expenses))
	var failures []*ExpenseError
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, o.err)
			continue
		}
		results = append(results, o.result)
	}

	if firstErr != nil {
		return results, firstErr
	}
	if len(failures) > 0 {
		return results, &RunError{AccountID: account.ID, SyncRecordID: syncRecordID, Failures: failures}
	}
	return results, nil
}

func (e *Engine) reconcile(ctx context.Context, account *linkedaccount.Account, syncRecordID string, expense splitwise.Expense) (Result, error) {
	ctx, span := syncTracer.Start(ctx, "budget_sync.handle_expense",
		trace.WithAttributes(
			attribute.String("budget_sync.account.id", account.ID),
			attribute.String("sync_record.id", syncRecordID),
			attribute.Int64("splitwise.expense.id", expense.ID),
		),
	)
	defer span.End()

	existing, err := e.synced.GetByExpenseID(ctx, expense.ID, account.ID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("failed to get synced transaction: %w", err)
	}

	class := Classify(expense)
	span.SetAttributes(attribute.String("splitwise.expense.class", string(class)))

	var res Result
	if existing == nil {
		res, err = e.handleNew(ctx, account, syncRecordID, expense, class)
	} else {
		res, err = e.handleExisting(ctx, account, syncRecordID, expense, class, existing)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (e *Engine) handleNew(ctx context.Context, account *linkedaccount.Account, syncRecordID string, expense splitwise.Expense, class Classification) (Result, error) {
	if class == ClassDeleted {
		return e.result(ResultSkipDeleted, account, syncRecordID, expense.ID, nil), nil
	}

	txn, err := e.createBudgetTransaction(ctx, account, syncRecordID, expense)
	if err != nil {
		return Result{}, err
	}

	synced, err := e.synced.Create(ctx, syncedtxn.CreateParams{
		AccountID:         account.ID,
		ExpenseID:         expense.ID,
		Amount:            txn.Amount,
		IsPayment:         expense.Payment,
		YnabTransactionID: txn.ID,
		SyncRecordID:      syncRecordID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to record synced transaction for ynab transaction %s: %w", txn.ID, err)
	}
	return e.result(ResultCreated, account, syncRecordID, expense.ID, synced), nil
}

func (e *Engine) handleExisting(ctx context.Context, account *linkedaccount.Account, syncRecordID string, expense splitwise.Expense, class Classification, existing *syncedtxn.SyncedTransaction) (Result, error) {
	switch class {
	case ClassCreated:
		return Result{}, &CreatedExpenseForExistingError{
			AccountID:    account.ID,
			ExpenseID:    expense.ID,
			SyncRecordID: syncRecordID,
		}
	case ClassDeleted:
		return e.handleDeleted(ctx, account, syncRecordID, expense, existing)
	default:
		return e.handleUpdated(ctx, account, syncRecordID, expense, existing)
	}
}

func (e *Engine) handleDeleted(ctx context.Context, account *linkedaccount.Account, syncRecordID string, expense splitwise.Expense, existing *syncedtxn.SyncedTransaction) (Result, error) {
	if existing.IsDeleted() {
		return e.result(ResultSkipDeleted, account, syncRecordID, expense.ID, existing), nil
	}

	if _, err := e.budget.DeleteTransaction(ctx, account.YnabBudgetID, existing.YnabTransactionID); err != nil && !isNotFound(err) {
		return Result{}, fmt.Errorf("failed to delete ynab transaction %s: %w", existing.YnabTransactionID, err)
	}

	synced, err := e.synced.SoftDelete(ctx, expense.ID, account.ID, syncRecordID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to soft delete synced transaction: %w", err)
	}
	return e.result(ResultDeleted, account, syncRecordID, expense.ID, synced), nil
}

func (e *Engine) handleUpdated(ctx context.Context, account *linkedaccount.Account, syncRecordID string, expense splitwise.Expense, existing *syncedtxn.SyncedTransaction) (Result, error) {
	// A soft-deleted mapping whose expense came back gets a new budget
	// transaction, the old one is gone.
	if existing.IsDeleted() {
		txn, err := e.createBudgetTransaction(ctx, account, syncRecordID, expense)
		if err != nil {
			return Result{}, err
		}
		synced, err := e.synced.UpdateByExpenseID(ctx, expense.ID, account.ID, syncedtxn.UpdateParams{
			Amount:            txn.Amount,
			YnabTransactionID: txn.ID,
			SyncRecordID:      syncRecordID,
			Restore:           true,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to restore synced transaction: %w", err)
		}
		return e.result(ResultUpdated, account, syncRecordID, expense.ID, synced), nil
	}

	self, counterparty, amount, err := e.shares(account, expense)
	if err != nil {
		return Result{}, err
	}

	txn, err := e.budget.UpdateTransaction(ctx, account.YnabBudgetID, existing.YnabTransactionID, ynab.SaveTransaction{
		Amount:    amount,
		PayeeName: payeeName(counterparty),
		Date:      transactionDate(expense),
		Memo:      buildMemo(expense, syncRecordID, memoUpdatedAt, expense.UpdatedAt),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to update ynab transaction %s for user %d: %w", existing.YnabTransactionID, self.UserID, err)
	}

	synced, err := e.synced.UpdateByExpenseID(ctx, expense.ID, account.ID, syncedtxn.UpdateParams{
		Amount:            txn.Amount,
		YnabTransactionID: txn.ID,
		SyncRecordID:      syncRecordID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to update synced transaction: %w", err)
	}
	return e.result(ResultUpdated, account, syncRecordID, expense.ID, synced), nil
}

func (e *Engine) createBudgetTransaction(ctx context.Context, account *linkedaccount.Account, syncRecordID string, expense splitwise.Expense) (*ynab.Transaction, error) {
	_, counterparty, amount, err := e.shares(account, expense)
	if err != nil {
		return nil, err
	}

	txn, err := e.budget.CreateTransaction(ctx, account.YnabBudgetID, ynab.SaveTransaction{
		AccountID:  account.YnabAccountID,
		CategoryID: account.YnabUncategorizedCategoryID,
		Amount:     amount,
		PayeeName:  payeeName(counterparty),
		Date:       transactionDate(expense),
		Memo:       buildMemo(expense, syncRecordID, memoCreatedAt, expense.CreatedAt),
		Cleared:    ynab.ClearedStatusUncleared,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ynab transaction: %w", err)
	}
	return txn, nil
}

// shares resolves the self and counterparty shares of a two-party expense and
// the self net balance in milliunits.
func (e *Engine) shares(account *linkedaccount.Account, expense splitwise.Expense) (self, counterparty splitwise.Share, amount currency.Milliunits, err error) {
	if len(expense.Users) != 2 {
		return self, counterparty, 0, &InvalidSharesCountError{
			AccountID:  account.ID,
			ExpenseID:  expense.ID,
			SelfUserID: account.SplitwiseUserID,
			Count:      len(expense.Users),
		}
	}

	var foundSelf, foundCounterparty bool
	for _, s := range expense.Users {
		if s.UserID == account.SplitwiseUserID {
			if !foundSelf {
				self, foundSelf = s, true
			}
			continue
		}
		if !foundCounterparty {
			counterparty, foundCounterparty = s, true
		}
	}
	if !foundSelf {
		return self, counterparty, 0, &ShareNotFoundError{AccountID: account.ID, ExpenseID: expense.ID, SelfUserID: account.SplitwiseUserID}
	}
	if !foundCounterparty {
		return self, counterparty, 0, &ShareNotFoundError{AccountID: account.ID, ExpenseID: expense.ID, SelfUserID: account.SplitwiseUserID, Counterparty: true}
	}

	amount, err = self.NetBalanceMilliunits()
	if err != nil {
		return self, counterparty, 0, fmt.Errorf("expense %d: %w", expense.ID, err)
	}
	return self, counterparty, amount, nil
}

func (e *Engine) result(kind ResultKind, account *linkedaccount.Account, syncRecordID string, expenseID int64, synced *syncedtxn.SyncedTransaction) Result {
	return Result{
		Kind:              kind,
		AccountID:         account.ID,
		SyncRecordID:      syncRecordID,
		ExpenseID:         expenseID,
		Date:              e.now().UTC(),
		SyncedTransaction: synced,
	}
}

// isNotFound reports a budget transaction that no longer exists.
func isNotFound(err error) bool {
	var apiErr *ynab.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
