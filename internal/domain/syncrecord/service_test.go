package syncrecord

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/domain/storage"
	"budgetsync/internal/shared/retry"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	InsertFunc       func(ctx context.Context, rec *Record) error
	ListByStatusFunc func(ctx context.Context, accountID string, status Status) ([]*Record, error)
	ListByIDFunc     func(ctx context.Context, accountID, id string) ([]*Record, error)
	ListRecentFunc   func(ctx context.Context, accountID string, limit int) ([]*Record, error)
	UpdateFunc       func(ctx context.Context, rec *Record) error
}

func (m *MockRepository) Insert(ctx context.Context, rec *Record) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, rec)
	}
	return nil
}

func (m *MockRepository) ListByStatus(ctx context.Context, accountID string, status Status) ([]*Record, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, accountID, status)
	}
	return nil, nil
}

func (m *MockRepository) ListByID(ctx context.Context, accountID, id string) ([]*Record, error) {
	if m.ListByIDFunc != nil {
		return m.ListByIDFunc(ctx, accountID, id)
	}
	return nil, nil
}

func (m *MockRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]*Record, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, accountID, limit)
	}
	return nil, nil
}

func (m *MockRepository) Update(ctx context.Context, rec *Record) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, rec)
	}
	return nil
}

var fixedNow = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	return NewService(repo,
		WithRetryPolicy(retry.Policy{InitialDelay: time.Millisecond, Factor: 2, MaxRetries: 3}),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		var inserted *Record
		svc := newTestService(&MockRepository{
			InsertFunc: func(ctx context.Context, rec *Record) error {
				inserted = rec
				return nil
			},
		})

		rec, err := svc.Create(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, StatusReady, rec.Status)
		assert.Equal(t, fixedNow, rec.CreatedAt)
		assert.Same(t, rec, inserted)
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		attempts := 0
		svc := newTestService(&MockRepository{
			InsertFunc: func(ctx context.Context, rec *Record) error {
				attempts++
				return fmt.Errorf("insert: %w", storage.ErrDuplicateKey)
			},
		})

		_, err := svc.Create(ctx, "acc-1")
		assert.ErrorIs(t, err, ErrDuplicateRecord)
		assert.Equal(t, 1, attempts)
	})
}

func TestService_GetMostRecentCompleted(t *testing.T) {
	ctx := context.Background()
	completedAt := fixedNow.Add(-time.Hour)

	tests := []struct {
		name    string
		records []*Record
		wantID  string
		wantErr error
	}{
		{name: "none", records: nil},
		{
			name: "newest first",
			records: []*Record{
				{ID: "new", Status: StatusCompleted, CompletedAt: &completedAt},
				{ID: "old", Status: StatusCompleted, CompletedAt: &completedAt},
			},
			wantID: "new",
		},
		{
			name:    "missing completedAt",
			records: []*Record{{ID: "broken", Status: StatusCompleted}},
			wantErr: ErrInvariantViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&MockRepository{
				ListByStatusFunc: func(ctx context.Context, accountID string, status Status) ([]*Record, error) {
					assert.Equal(t, StatusCompleted, status)
					return tt.records, nil
				},
			})

			rec, err := svc.GetMostRecentCompleted(ctx, "acc-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, rec)
			} else {
				assert.Equal(t, tt.wantID, rec.ID)
			}
		})
	}
}

func TestService_GetByID(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		records []*Record
		wantNil bool
		wantErr error
	}{
		{name: "absent", wantNil: true},
		{name: "single", records: []*Record{{ID: "r1"}}},
		{name: "duplicate", records: []*Record{{ID: "r1"}, {ID: "r1"}}, wantErr: ErrDuplicateRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&MockRepository{
				ListByIDFunc: func(ctx context.Context, accountID, id string) ([]*Record, error) {
					return tt.records, nil
				},
			})

			rec, err := svc.GetByID(ctx, "r1", "acc-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNil, rec == nil)
		})
	}
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	earlier := fixedNow.Add(-time.Minute)

	tests := []struct {
		name          string
		stored        []*Record
		updateErr     error
		status        Status
		wantErr       error
		wantCompleted bool
	}{
		{
			name:          "in-progress to completed sets completedAt",
			stored:        []*Record{{ID: "r1", AccountID: "acc-1", Status: StatusInProgress, CreatedAt: earlier}},
			status:        StatusCompleted,
			wantCompleted: true,
		},
		{
			name:   "ready to in-progress",
			stored: []*Record{{ID: "r1", AccountID: "acc-1", Status: StatusReady}},
			status: StatusInProgress,
		},
		{
			name:   "ready to error",
			stored: []*Record{{ID: "r1", AccountID: "acc-1", Status: StatusReady}},
			status: StatusError,
		},
		{
			name:    "unknown record",
			status:  StatusError,
			wantErr: ErrRecordNotFound,
		},
		{
			name:    "stored record violates invariant",
			stored:  []*Record{{ID: "r1", AccountID: "acc-1", Status: StatusCompleted}},
			status:  StatusError,
			wantErr: ErrInvariantViolation,
		},
		{
			name:    "completed is terminal",
			stored:  []*Record{{ID: "r1", AccountID: "acc-1", Status: StatusCompleted, CompletedAt: &earlier}},
			status:  StatusError,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "invalid status",
			status:  Status("paused"),
			wantErr: ErrInvalidStatus,
		},
		{
			name:      "row vanished between read and write",
			stored:    []*Record{{ID: "r1", AccountID: "acc-1", Status: StatusReady}},
			updateErr: storage.ErrConditionFailed,
			status:    StatusInProgress,
			wantErr:   ErrRecordNotFound,
		},
		{
			name:      "io failure",
			stored:    []*Record{{ID: "r1", AccountID: "acc-1", Status: StatusReady}},
			updateErr: errors.New("broken pipe"),
			status:    StatusInProgress,
			wantErr:   storage.ErrStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var written *Record
			svc := newTestService(&MockRepository{
				ListByIDFunc: func(ctx context.Context, accountID, id string) ([]*Record, error) {
					return tt.stored, nil
				},
				UpdateFunc: func(ctx context.Context, rec *Record) error {
					written = rec
					return tt.updateErr
				},
			})

			rec, err := svc.UpdateStatus(ctx, "r1", "acc-1", tt.status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, fixedNow, rec.UpdatedAt)
			assert.Equal(t, tt.wantCompleted, rec.CompletedAt != nil)
			assert.Equal(t, rec, written)
		})
	}
}
