package syncedtxn

import "context"

// Repository defines the interface for synced transaction data access
type Repository interface {
	// Insert stores a new row; storage.ErrDuplicateKey if the key exists.
	Insert(ctx context.Context, row Row) error

	// ListByExpenseID returns every row of the expense, deleted or not.
	ListByExpenseID(ctx context.Context, accountID string, expenseID int64) ([]Row, error)

	// ListByAccount returns every row of the account, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]Row, error)

	// Update rewrites the row stored under row.Key();
	// storage.ErrConditionFailed if no such row exists.
	Update(ctx context.Context, row Row) error

	// Delete removes the row; storage.ErrConditionFailed if it does not exist.
	Delete(ctx context.Context, key Key) error
}
