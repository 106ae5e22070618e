package syncrecord

import (
	"errors"
	"fmt"
	"time"

	"budgetsync/internal/shared/identity"
)

// Status is the lifecycle state of a sync run.
type Status string

const (
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusInProgress, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Domain errors
var (
	ErrRecordNotFound     = errors.New("sync record not found")
	ErrDuplicateRecord    = errors.New("duplicate sync record")
	ErrInvariantViolation = errors.New("sync record invariant violated")
	ErrInvalidTransition  = errors.New("invalid sync record status transition")
	ErrInvalidStatus      = errors.New("invalid sync record status")
)

// Record is one sync run of a linked account.
type Record struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"accountId"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// DeriveID returns the record id for an account and creation time.
func DeriveID(accountID string, createdAt time.Time) string {
	return identity.Derive(accountID, createdAt.UTC().Format(time.RFC3339Nano))
}

// NewRecord builds a ready record created at now.
func NewRecord(accountID string, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		ID:        DeriveID(accountID, now),
		AccountID: accountID,
		Status:    StatusReady,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InvariantError reports a stored record whose completedAt disagrees with
// its status.
type InvariantError struct {
	RecordID  string
	AccountID string
	Status    Status
}

func (e *InvariantError) Error() string {
	if e.Status == StatusCompleted {
		return fmt.Sprintf("sync record %s (account %s) is completed but has no completedAt", e.RecordID, e.AccountID)
	}
	return fmt.Sprintf("sync record %s (account %s) has completedAt but status %s", e.RecordID, e.AccountID, e.Status)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariantViolation }

// CheckInvariant verifies completedAt is set exactly when status is completed.
func (r *Record) CheckInvariant() error {
	if (r.Status == StatusCompleted) != (r.CompletedAt != nil) {
		return &InvariantError{RecordID: r.ID, AccountID: r.AccountID, Status: r.Status}
	}
	return nil
}

var transitions = map[Status][]Status{
	StatusReady:      {StatusInProgress, StatusError},
	StatusInProgress: {StatusCompleted, StatusError},
}

// CanTransition reports whether a run may move from one status to another.
// Completed and error are terminal for the run that reached them.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// WithStatus returns a copy of r moved to status at now. CompletedAt is set
// only for the completed status.
func (r *Record) WithStatus(status Status, now time.Time) *Record {
	next := *r
	next.Status = status
	next.UpdatedAt = now.UTC()
	next.CompletedAt = nil
	if status == StatusCompleted {
		completed := now.UTC()
		next.CompletedAt = &completed
	}
	return &next
}
