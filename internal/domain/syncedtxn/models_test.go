package syncedtxn

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"budgetsync/internal/domain/currency"
)

func TestTypeForAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount currency.Milliunits
		want   Type
	}{
		{"positive is credit", 1, TypeCredit},
		{"zero is debit", 0, TypeDebit},
		{"negative is debit", -2500, TypeDebit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForAmount(tt.amount))
		})
	}
}

func TestSyncedTransaction_Key(t *testing.T) {
	// 23:30 in UTC-3 is already the next day in UTC.
	loc := time.FixedZone("BRT", -3*60*60)
	txn := &SyncedTransaction{
		AccountID: "acc",
		ExpenseID: 7,
		Type:      TypeDebit,
		CreatedAt: time.Date(2024, 3, 9, 23, 30, 0, 0, loc),
	}

	key := txn.Key()
	assert.Equal(t, "2024-03-10", key.CreatedDate)
	assert.Equal(t, "acc/7/debit/2024-03-10", key.String())
	assert.Equal(t, key, ToRow(txn).Key())
}

func TestSyncedTransaction_Touch(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	txn := &SyncedTransaction{RelatedSyncRecordIDs: []string{"a"}}

	txn.touch("a", now)
	txn.touch("b", now)
	txn.touch("", now)

	assert.Equal(t, []string{"a", "b"}, txn.RelatedSyncRecordIDs)
	assert.Equal(t, now, txn.UpdatedAt)
}

func TestSyncedTransaction_CloneIsIndependent(t *testing.T) {
	deleted := time.Now()
	txn := &SyncedTransaction{RelatedSyncRecordIDs: []string{"a"}, DeletedAt: &deleted}

	c := txn.clone()
	c.RelatedSyncRecordIDs[0] = "changed"
	c.DeletedAt = nil

	assert.Equal(t, "a", txn.RelatedSyncRecordIDs[0])
	assert.True(t, txn.IsDeleted())
}

func TestCreateParams_Validate(t *testing.T) {
	valid := CreateParams{AccountID: "acc", ExpenseID: 1, YnabTransactionID: "y", SyncRecordID: "s"}

	tests := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr bool
	}{
		{"valid", func(*CreateParams) {}, false},
		{"missing account", func(p *CreateParams) { p.AccountID = "" }, true},
		{"missing expense", func(p *CreateParams) { p.ExpenseID = 0 }, true},
		{"missing ynab id", func(p *CreateParams) { p.YnabTransactionID = "" }, true},
		{"missing sync record", func(p *CreateParams) { p.SyncRecordID = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompensationError(t *testing.T) {
	original := errors.New("delete failed")
	compensation := errors.New("rollback failed")
	err := &CompensationError{AccountID: "acc", ExpenseID: 1, Original: original, Compensation: compensation}

	assert.ErrorIs(t, err, ErrCompensationFailed)
	assert.ErrorIs(t, err, original)
	assert.ErrorIs(t, err, compensation)
}
