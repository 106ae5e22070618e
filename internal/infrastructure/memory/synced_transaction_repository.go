package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"budgetsync/internal/domain/storage"
	"budgetsync/internal/domain/syncedtxn"
)

// SyncedTransactionRepository implements syncedtxn.Repository in memory.
type SyncedTransactionRepository struct {
	hooked
	mu   sync.RWMutex
	rows map[syncedtxn.Key]syncedtxn.Row
}

var _ syncedtxn.Repository = (*SyncedTransactionRepository)(nil)

// NewSyncedTransactionRepository creates an empty repository.
func NewSyncedTransactionRepository() *SyncedTransactionRepository {
	return &SyncedTransactionRepository{rows: make(map[syncedtxn.Key]syncedtxn.Row)}
}

func (r *SyncedTransactionRepository) Insert(ctx context.Context, row syncedtxn.Row) error {
	key := row.Key()
	if err := r.before(OpInsert, key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[key]; exists {
		return fmt.Errorf("synced transaction %s: %w", key, storage.ErrDuplicateKey)
	}
	r.rows[key] = copyRow(row)
	return nil
}

func (r *SyncedTransactionRepository) ListByExpenseID(ctx context.Context, accountID string, expenseID int64) ([]syncedtxn.Row, error) {
	if err := r.before(OpGet, expenseID); err != nil {
		return nil, err
	}
	return r.collect(func(row syncedtxn.Row) bool {
		return row.AccountID == accountID && row.ExpenseID == expenseID
	}), nil
}

func (r *SyncedTransactionRepository) ListByAccount(ctx context.Context, accountID string) ([]syncedtxn.Row, error) {
	if err := r.before(OpList, accountID); err != nil {
		return nil, err
	}
	return r.collect(func(row syncedtxn.Row) bool { return row.AccountID == accountID }), nil
}

func (r *SyncedTransactionRepository) Update(ctx context.Context, row syncedtxn.Row) error {
	key := row.Key()
	if err := r.before(OpUpdate, key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[key]; !ok {
		return fmt.Errorf("synced transaction %s: %w", key, storage.ErrConditionFailed)
	}
	r.rows[key] = copyRow(row)
	return nil
}

func (r *SyncedTransactionRepository) Delete(ctx context.Context, key syncedtxn.Key) error {
	if err := r.before(OpDelete, key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[key]; !ok {
		return fmt.Errorf("synced transaction %s: %w", key, storage.ErrConditionFailed)
	}
	delete(r.rows, key)
	return nil
}

// Put stores row as-is, bypassing every check.
func (r *SyncedTransactionRepository) Put(row syncedtxn.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.Key()] = copyRow(row)
}

// Rows returns a snapshot of every stored row.
func (r *SyncedTransactionRepository) Rows() []syncedtxn.Row {
	return r.collect(func(syncedtxn.Row) bool { return true })
}

func (r *SyncedTransactionRepository) collect(match func(syncedtxn.Row) bool) []syncedtxn.Row {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []syncedtxn.Row
	for _, row := range r.rows {
		if match(row) {
			out = append(out, copyRow(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

func copyRow(row syncedtxn.Row) syncedtxn.Row {
	row.RelatedSyncRecordIDs = slices.Clone(row.RelatedSyncRecordIDs)
	if row.DeletedAt != nil {
		t := *row.DeletedAt
		row.DeletedAt = &t
	}
	return row
}
