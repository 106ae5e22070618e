package budgetsync

import (
	"fmt"
	"strings"
	"time"

	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/infrastructure/splitwise"
)

// Classification of a fetched expense.
type Classification string

const (
	ClassCreated Classification = "created"
	ClassUpdated Classification = "updated"
	ClassDeleted Classification = "deleted"
)

// Classify derives the classification from the expense timestamps alone.
func Classify(e splitwise.Expense) Classification {
	if e.DeletedAt != nil {
		return ClassDeleted
	}
	if e.CreatedAt.Equal(e.UpdatedAt) {
		return ClassCreated
	}
	return ClassUpdated
}

// ResultKind is the outcome of reconciling one expense.
type ResultKind string

const (
	ResultCreated     ResultKind = "created"
	ResultUpdated     ResultKind = "updated"
	ResultDeleted     ResultKind = "deleted"
	ResultSkipDeleted ResultKind = "skip_deleted"
)

// Result describes what happened to one expense.
type Result struct {
	Kind              ResultKind                   `json:"kind"`
	AccountID         string                       `json:"accountId"`
	SyncRecordID      string                       `json:"syncRecordId"`
	ExpenseID         int64                        `json:"expenseId"`
	Date              time.Time                    `json:"date"`
	SyncedTransaction *syncedtxn.SyncedTransaction `json:"syncedTransaction,omitempty"`
}

// RunResult is the outcome of one sync run. Results lists the expenses that
// succeeded, in fetch order.
type RunResult struct {
	AccountID    string            `json:"accountId"`
	SyncRecordID string            `json:"syncRecordId"`
	Status       syncrecord.Status `json:"status"`
	Since        *time.Time        `json:"since,omitempty"`
	Fetched      int               `json:"fetched"`
	Results      []Result          `json:"results"`
}

// FailurePolicy decides how per-expense failures end a run.
type FailurePolicy string

const (
	// Partition lets every expense finish and reports all failures.
	Partition FailurePolicy = "partition"
	// FailFast cancels the remaining expenses on the first failure.
	FailFast FailurePolicy = "fail-fast"
)

// ParseFailurePolicy parses a policy name; empty means Partition.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Partition:
		return Partition, nil
	case FailFast, "failfast":
		return FailFast, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Options control a single sync run.
type Options struct {
	Since          *time.Time    // overrides the window derived from the last completed run
	Limit          int           // 0 fetches every changed expense
	FailurePolicy  FailurePolicy // defaults to Partition
	MaxConcurrency int           // 0 is unbounded
}

// AccountOutcome is the result of one account inside SyncAll.
type AccountOutcome struct {
	AccountID string     `json:"accountId"`
	Result    *RunResult `json:"result,omitempty"`
	Err       error      `json:"-"`
}
