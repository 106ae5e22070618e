package linkedaccount

import (
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"budgetsync/internal/shared/identity"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("linked account not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// Account pairs one Splitwise group/user with one YNAB budget/account.
type Account struct {
	ID                          string    `json:"id"`
	Email                       string    `json:"email"`
	SplitwiseGroupID            int64     `json:"splitwiseGroupId"`
	SplitwiseUserID             int64     `json:"splitwiseUserId"`
	YnabBudgetID                string    `json:"ynabBudgetId"`
	YnabAccountID               string    `json:"ynabAccountId"`
	YnabUncategorizedCategoryID string    `json:"ynabUncategorizedCategoryId"`
	CreatedAt                   time.Time `json:"createdAt"`
	UpdatedAt                   time.Time `json:"updatedAt"`
}

// RegisterParams contains the identity fields and the YNAB links of an account.
type RegisterParams struct {
	Email                       string
	SplitwiseGroupID            int64
	SplitwiseUserID             int64
	YnabBudgetID                string
	YnabAccountID               string
	YnabUncategorizedCategoryID string
}

// Validate validates the registration parameters
func (p RegisterParams) Validate() error {
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return errors.Join(ErrInvalidInput, errors.New("a valid email is required"))
	}
	if p.SplitwiseGroupID <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("splitwise group id is required"))
	}
	if p.SplitwiseUserID <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("splitwise user id is required"))
	}
	if strings.TrimSpace(p.YnabBudgetID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("ynab budget id is required"))
	}
	if strings.TrimSpace(p.YnabAccountID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("ynab account id is required"))
	}
	if strings.TrimSpace(p.YnabUncategorizedCategoryID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("ynab uncategorized category id is required"))
	}
	return nil
}

// DeriveID returns the account id for the given identity fields.
// Emails are compared case-insensitively.
func DeriveID(email string, splitwiseGroupID, splitwiseUserID int64) string {
	return identity.Derive(
		strings.ToLower(strings.TrimSpace(email)),
		strconv.FormatInt(splitwiseGroupID, 10),
		strconv.FormatInt(splitwiseUserID, 10),
	)
}

// NewAccount builds the account a registration would store.
func NewAccount(p RegisterParams, now time.Time) *Account {
	return &Account{
		ID:                          DeriveID(p.Email, p.SplitwiseGroupID, p.SplitwiseUserID),
		Email:                       strings.TrimSpace(p.Email),
		SplitwiseGroupID:            p.SplitwiseGroupID,
		SplitwiseUserID:             p.SplitwiseUserID,
		YnabBudgetID:                strings.TrimSpace(p.YnabBudgetID),
		YnabAccountID:               strings.TrimSpace(p.YnabAccountID),
		YnabUncategorizedCategoryID: strings.TrimSpace(p.YnabUncategorizedCategoryID),
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}
}
