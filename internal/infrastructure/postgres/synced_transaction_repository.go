package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"budgetsync/internal/domain/syncedtxn"
)

// SyncedTransactionRepository implements syncedtxn.Repository for PostgreSQL
type SyncedTransactionRepository struct {
	db *DB
}

var _ syncedtxn.Repository = (*SyncedTransactionRepository)(nil)

// NewSyncedTransactionRepository creates a new PostgreSQL synced transaction repository
func NewSyncedTransactionRepository(db *DB) *SyncedTransactionRepository {
	return &SyncedTransactionRepository{db: db}
}

const syncedTransactionColumns = `account_id, expense_id, type, created_date, amount, is_payment,
	ynab_transaction_id, related_sync_record_ids, created_at, updated_at, deleted_at`

func (r *SyncedTransactionRepository) Insert(ctx context.Context, row syncedtxn.Row) error {
	query := `
		INSERT INTO synced_transactions (` + syncedTransactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		row.AccountID, row.ExpenseID, string(row.Type), row.CreatedDate, row.Amount, row.IsPayment,
		row.YnabTransactionID, pq.Array(relatedIDs(row.RelatedSyncRecordIDs)),
		row.CreatedAt, row.UpdatedAt, row.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert synced transaction %s: %w", row.Key(), translateError(err))
	}
	return nil
}

func (r *SyncedTransactionRepository) ListByExpenseID(ctx context.Context, accountID string, expenseID int64) ([]syncedtxn.Row, error) {
	query := `
		SELECT ` + syncedTransactionColumns + `
		FROM synced_transactions
		WHERE account_id = $1 AND expense_id = $2
		ORDER BY created_at DESC
	`
	return r.query(ctx, query, accountID, expenseID)
}

func (r *SyncedTransactionRepository) ListByAccount(ctx context.Context, accountID string) ([]syncedtxn.Row, error) {
	query := `
		SELECT ` + syncedTransactionColumns + `
		FROM synced_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`
	return r.query(ctx, query, accountID)
}

func (r *SyncedTransactionRepository) Update(ctx context.Context, row syncedtxn.Row) error {
	query := `
		UPDATE synced_transactions
		SET amount = $5, is_payment = $6, ynab_transaction_id = $7,
			related_sync_record_ids = $8, updated_at = $9, deleted_at = $10
		WHERE account_id = $1 AND expense_id = $2 AND type = $3 AND created_date = $4
	`

	result, err := r.db.ExecContext(ctx, query,
		row.AccountID, row.ExpenseID, string(row.Type), row.CreatedDate,
		row.Amount, row.IsPayment, row.YnabTransactionID,
		pq.Array(relatedIDs(row.RelatedSyncRecordIDs)), row.UpdatedAt, row.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update synced transaction %s: %w", row.Key(), err)
	}
	return expectAffected(result, "synced transaction "+row.Key().String())
}

func (r *SyncedTransactionRepository) Delete(ctx context.Context, key syncedtxn.Key) error {
	query := `
		DELETE FROM synced_transactions
		WHERE account_id = $1 AND expense_id = $2 AND type = $3 AND created_date = $4
	`

	result, err := r.db.ExecContext(ctx, query, key.AccountID, key.ExpenseID, string(key.Type), key.CreatedDate)
	if err != nil {
		return fmt.Errorf("failed to delete synced transaction %s: %w", key, err)
	}
	return expectAffected(result, "synced transaction "+key.String())
}

func (r *SyncedTransactionRepository) query(ctx context.Context, query string, args ...any) ([]syncedtxn.Row, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query synced transactions: %w", err)
	}
	defer rows.Close()

	var result []syncedtxn.Row
	for rows.Next() {
		var row syncedtxn.Row
		var txnType string
		var related []string
		var deletedAt sql.NullTime

		err := rows.Scan(
			&row.AccountID, &row.ExpenseID, &txnType, &row.CreatedDate, &row.Amount, &row.IsPayment,
			&row.YnabTransactionID, pq.Array(&related), &row.CreatedAt, &row.UpdatedAt, &deletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan synced transaction: %w", err)
		}

		row.Type = syncedtxn.Type(txnType)
		row.RelatedSyncRecordIDs = related
		row.CreatedAt = row.CreatedAt.UTC()
		row.UpdatedAt = row.UpdatedAt.UTC()
		row.DeletedAt = utcPtr(deletedAt)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate synced transactions: %w", err)
	}
	return result, nil
}

// relatedIDs keeps the NOT NULL array column satisfied for empty slices.
func relatedIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
