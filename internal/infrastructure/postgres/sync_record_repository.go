package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"budgetsync/internal/domain/syncrecord"
)

// SyncRecordRepository implements syncrecord.Repository for PostgreSQL
type SyncRecordRepository struct {
	db *DB
}

var _ syncrecord.Repository = (*SyncRecordRepository)(nil)

// NewSyncRecordRepository creates a new PostgreSQL sync record repository
func NewSyncRecordRepository(db *DB) *SyncRecordRepository {
	return &SyncRecordRepository{db: db}
}

const syncRecordColumns = `account_id, id, status, created_at, updated_at, completed_at`

func (r *SyncRecordRepository) Insert(ctx context.Context, rec *syncrecord.Record) error {
	query := `
		INSERT INTO sync_records (` + syncRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.AccountID, rec.ID, string(rec.Status), rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync record %s: %w", rec.ID, translateError(err))
	}
	return nil
}

func (r *SyncRecordRepository) ListByStatus(ctx context.Context, accountID string, status syncrecord.Status) ([]*syncrecord.Record, error) {
	query := `
		SELECT ` + syncRecordColumns + `
		FROM sync_records
		WHERE account_id = $1 AND status = $2
		ORDER BY created_at DESC
	`
	return r.query(ctx, query, accountID, string(status))
}

func (r *SyncRecordRepository) ListByID(ctx context.Context, accountID, id string) ([]*syncrecord.Record, error) {
	query := `
		SELECT ` + syncRecordColumns + `
		FROM sync_records
		WHERE account_id = $1 AND id = $2
	`
	return r.query(ctx, query, accountID, id)
}

func (r *SyncRecordRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]*syncrecord.Record, error) {
	query := `
		SELECT ` + syncRecordColumns + `
		FROM sync_records
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.query(ctx, query, accountID, limit)
}

func (r *SyncRecordRepository) Update(ctx context.Context, rec *syncrecord.Record) error {
	query := `
		UPDATE sync_records
		SET status = $3, updated_at = $4, completed_at = $5
		WHERE account_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		rec.AccountID, rec.ID, string(rec.Status), rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync record %s: %w", rec.ID, err)
	}
	return expectAffected(result, "sync record "+rec.ID)
}

func (r *SyncRecordRepository) query(ctx context.Context, query string, args ...any) ([]*syncrecord.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync records: %w", err)
	}
	defer rows.Close()

	var records []*syncrecord.Record
	for rows.Next() {
		var rec syncrecord.Record
		var status string
		var completedAt sql.NullTime

		if err := rows.Scan(&rec.AccountID, &rec.ID, &status, &rec.CreatedAt, &rec.UpdatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}

		rec.Status = syncrecord.Status(status)
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		rec.CompletedAt = utcPtr(completedAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync records: %w", err)
	}
	return records, nil
}

func utcPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
