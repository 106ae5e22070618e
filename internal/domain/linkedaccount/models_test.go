package linkedaccount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validParams() RegisterParams {
	return RegisterParams{
		Email:                       "owner@example.com",
		SplitwiseGroupID:            42,
		SplitwiseUserID:             10,
		YnabBudgetID:                "budget-1",
		YnabAccountID:               "account-1",
		YnabUncategorizedCategoryID: "category-1",
	}
}

func TestRegisterParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *RegisterParams)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *RegisterParams) {}},
		{name: "bad email", mutate: func(p *RegisterParams) { p.Email = "not-an-email" }, wantErr: true},
		{name: "missing group", mutate: func(p *RegisterParams) { p.SplitwiseGroupID = 0 }, wantErr: true},
		{name: "missing user", mutate: func(p *RegisterParams) { p.SplitwiseUserID = -1 }, wantErr: true},
		{name: "missing budget", mutate: func(p *RegisterParams) { p.YnabBudgetID = " " }, wantErr: true},
		{name: "missing account", mutate: func(p *RegisterParams) { p.YnabAccountID = "" }, wantErr: true},
		{name: "missing category", mutate: func(p *RegisterParams) { p.YnabUncategorizedCategoryID = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
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

func TestDeriveID(t *testing.T) {
	id := DeriveID("owner@example.com", 42, 10)

	assert.Equal(t, id, DeriveID("Owner@Example.com ", 42, 10))
	assert.NotEqual(t, id, DeriveID("owner@example.com", 42, 11))
	assert.NotEqual(t, id, DeriveID("owner@example.com", 43, 10))
	assert.NotEqual(t, id, DeriveID("other@example.com", 42, 10))
}

func TestNewAccount(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	acc := NewAccount(validParams(), now)

	assert.Equal(t, DeriveID("owner@example.com", 42, 10), acc.ID)
	assert.Equal(t, now, acc.CreatedAt)
	assert.Equal(t, now, acc.UpdatedAt)
	assert.Equal(t, "category-1", acc.YnabUncategorizedCategoryID)
}
