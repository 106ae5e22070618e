package syncedtxn

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"budgetsync/internal/domain/currency"
)

// DateLayout is the date-only form stored next to created_at.
const DateLayout = "2006-01-02"

// Type is the credit/debit discriminant derived from the net balance sign.
type Type string

const (
	TypeCredit Type = "credit"
	TypeDebit  Type = "debit"
)

// TypeForAmount returns credit for positive amounts and debit otherwise.
func TypeForAmount(amount currency.Milliunits) Type {
	if amount > 0 {
		return TypeCredit
	}
	return TypeDebit
}

// Domain errors
var (
	ErrMappingNotFound    = errors.New("synced transaction not found")
	ErrDuplicateMapping   = errors.New("duplicate synced transaction")
	ErrCompensationFailed = errors.New("synced transaction compensation failed")
	ErrInvalidInput       = errors.New("invalid input")
)

// SyncedTransaction maps one Splitwise expense to the YNAB transaction it
// produced for a linked account.
type SyncedTransaction struct {
	AccountID            string              `json:"accountId"`
	ExpenseID            int64               `json:"expenseId"`
	Type                 Type                `json:"type"`
	Amount               currency.Milliunits `json:"amount"`
	IsPayment            bool                `json:"isPayment"`
	YnabTransactionID    string              `json:"ynabTransactionId"`
	RelatedSyncRecordIDs []string            `json:"relatedSyncRecordIds"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
	DeletedAt            *time.Time          `json:"deletedAt,omitempty"`
}

// IsDeleted reports whether the mapping was soft-deleted.
func (t *SyncedTransaction) IsDeleted() bool {
	return t.DeletedAt != nil
}

// Key returns the physical storage key of the mapping.
func (t *SyncedTransaction) Key() Key {
	return Key{
		AccountID:   t.AccountID,
		ExpenseID:   t.ExpenseID,
		Type:        t.Type,
		CreatedDate: t.CreatedAt.UTC().Format(DateLayout),
	}
}

func (t *SyncedTransaction) clone() *SyncedTransaction {
	c := *t
	c.RelatedSyncRecordIDs = slices.Clone(t.RelatedSyncRecordIDs)
	if t.DeletedAt != nil {
		d := *t.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// touch appends the sync record id unless it is already recorded.
func (t *SyncedTransaction) touch(syncRecordID string, now time.Time) {
	if syncRecordID != "" && !slices.Contains(t.RelatedSyncRecordIDs, syncRecordID) {
		t.RelatedSyncRecordIDs = append(t.RelatedSyncRecordIDs, syncRecordID)
	}
	t.UpdatedAt = now
}

// Key is the storage key of a mapping. The type participates in the key, so
// a credit/debit flip moves the mapping to a new key.
type Key struct {
	AccountID   string
	ExpenseID   int64
	Type        Type
	CreatedDate string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s/%s", k.AccountID, k.ExpenseID, k.Type, k.CreatedDate)
}

// Row is the persisted form of a mapping, including the derived date column.
type Row struct {
	AccountID            string
	ExpenseID            int64
	Type                 Type
	CreatedDate          string
	Amount               int64
	IsPayment            bool
	YnabTransactionID    string
	RelatedSyncRecordIDs []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            *time.Time
}

// Key returns the storage key of the row.
func (r Row) Key() Key {
	return Key{AccountID: r.AccountID, ExpenseID: r.ExpenseID, Type: r.Type, CreatedDate: r.CreatedDate}
}

// ToRow maps a mapping to its storage row.
func ToRow(t *SyncedTransaction) Row {
	return Row{
		AccountID:            t.AccountID,
		ExpenseID:            t.ExpenseID,
		Type:                 t.Type,
		CreatedDate:          t.CreatedAt.UTC().Format(DateLayout),
		Amount:               int64(t.Amount),
		IsPayment:            t.IsPayment,
		YnabTransactionID:    t.YnabTransactionID,
		RelatedSyncRecordIDs: slices.Clone(t.RelatedSyncRecordIDs),
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		DeletedAt:            t.DeletedAt,
	}
}

// FromRow maps a storage row back to a mapping.
func FromRow(r Row) *SyncedTransaction {
	return &SyncedTransaction{
		AccountID:            r.AccountID,
		ExpenseID:            r.ExpenseID,
		Type:                 r.Type,
		Amount:               currency.Milliunits(r.Amount),
		IsPayment:            r.IsPayment,
		YnabTransactionID:    r.YnabTransactionID,
		RelatedSyncRecordIDs: slices.Clone(r.RelatedSyncRecordIDs),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		DeletedAt:            r.DeletedAt,
	}
}

// CreateParams contains parameters for recording a new mapping
type CreateParams struct {
	AccountID         string
	ExpenseID         int64
	Amount            currency.Milliunits
	IsPayment         bool
	YnabTransactionID string
	SyncRecordID      string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if p.ExpenseID <= 0 {
		return fmt.Errorf("%w: expense id is required", ErrInvalidInput)
	}
	if p.YnabTransactionID == "" {
		return fmt.Errorf("%w: ynab transaction id is required", ErrInvalidInput)
	}
	if p.SyncRecordID == "" {
		return fmt.Errorf("%w: sync record id is required", ErrInvalidInput)
	}
	return nil
}

// UpdateParams contains the fields an expense update rewrites.
// The type is always recomputed from Amount.
type UpdateParams struct {
	Amount            currency.Milliunits
	YnabTransactionID string // kept when empty
	SyncRecordID      string
	Restore           bool // clears DeletedAt
}

// DuplicateMappingError reports more than one row for an expense, or a
// create that collided with an existing key.
type DuplicateMappingError struct {
	AccountID string
	ExpenseID int64
	Count     int
}

func (e *DuplicateMappingError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("expense %d of account %s has %d synced transactions", e.ExpenseID, e.AccountID, e.Count)
	}
	return fmt.Sprintf("expense %d of account %s already has a synced transaction", e.ExpenseID, e.AccountID)
}

func (e *DuplicateMappingError) Is(target error) bool { return target == ErrDuplicateMapping }

// CompensationError is returned when a credit/debit flip could neither remove
// the old mapping nor roll back its replacement. Both rows remain stored and
// need manual reconciliation.
type CompensationError struct {
	AccountID    string
	ExpenseID    int64
	Kept         Key
	Replacement  Key
	Original     error
	Compensation error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf(
		"expense %d of account %s: delete of %s failed (%v) and rollback of %s failed (%v)",
		e.ExpenseID, e.AccountID, e.Kept, e.Original, e.Replacement, e.Compensation,
	)
}

func (e *CompensationError) Is(target error) bool { return target == ErrCompensationFailed }

func (e *CompensationError) Unwrap() []error { return []error{e.Original, e.Compensation} }
