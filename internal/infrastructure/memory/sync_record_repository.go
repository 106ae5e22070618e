package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"budgetsync/internal/domain/storage"
	"budgetsync/internal/domain/syncrecord"
)

// SyncRecordRepository implements syncrecord.Repository in memory.
type SyncRecordRepository struct {
	hooked
	mu      sync.RWMutex
	records map[string]map[string]syncrecord.Record // account id -> record id
}

var _ syncrecord.Repository = (*SyncRecordRepository)(nil)

// NewSyncRecordRepository creates an empty repository.
func NewSyncRecordRepository() *SyncRecordRepository {
	return &SyncRecordRepository{records: make(map[string]map[string]syncrecord.Record)}
}

func (r *SyncRecordRepository) Insert(ctx context.Context, rec *syncrecord.Record) error {
	if err := r.before(OpInsert, rec.ID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.records[rec.AccountID]
	if !ok {
		byID = make(map[string]syncrecord.Record)
		r.records[rec.AccountID] = byID
	}
	if _, exists := byID[rec.ID]; exists {
		return fmt.Errorf("sync record %s: %w", rec.ID, storage.ErrDuplicateKey)
	}
	byID[rec.ID] = copyRecord(*rec)
	return nil
}

func (r *SyncRecordRepository) ListByStatus(ctx context.Context, accountID string, status syncrecord.Status) ([]*syncrecord.Record, error) {
	if err := r.before(OpList, accountID); err != nil {
		return nil, err
	}
	return r.collect(accountID, func(rec syncrecord.Record) bool { return rec.Status == status }, 0), nil
}

func (r *SyncRecordRepository) ListByID(ctx context.Context, accountID, id string) ([]*syncrecord.Record, error) {
	if err := r.before(OpGet, id); err != nil {
		return nil, err
	}
	return r.collect(accountID, func(rec syncrecord.Record) bool { return rec.ID == id }, 0), nil
}

func (r *SyncRecordRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]*syncrecord.Record, error) {
	if err := r.before(OpList, accountID); err != nil {
		return nil, err
	}
	return r.collect(accountID, func(syncrecord.Record) bool { return true }, limit), nil
}

func (r *SyncRecordRepository) Update(ctx context.Context, rec *syncrecord.Record) error {
	if err := r.before(OpUpdate, rec.ID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byID := r.records[rec.AccountID]
	if _, ok := byID[rec.ID]; !ok {
		return fmt.Errorf("sync record %s: %w", rec.ID, storage.ErrConditionFailed)
	}
	byID[rec.ID] = copyRecord(*rec)
	return nil
}

// Put stores rec as-is, bypassing every check. Tests use it to seed
// corrupted or conflicting state.
func (r *SyncRecordRepository) Put(rec syncrecord.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.records[rec.AccountID]
	if !ok {
		byID = make(map[string]syncrecord.Record)
		r.records[rec.AccountID] = byID
	}
	byID[rec.ID] = copyRecord(rec)
}

func (r *SyncRecordRepository) collect(accountID string, match func(syncrecord.Record) bool, limit int) []*syncrecord.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*syncrecord.Record
	for _, rec := range r.records[accountID] {
		if match(rec) {
			c := copyRecord(rec)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyRecord(rec syncrecord.Record) syncrecord.Record {
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		rec.CompletedAt = &t
	}
	return rec
}
