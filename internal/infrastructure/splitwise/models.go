package splitwise

import (
	"fmt"
	"strings"
	"time"

	"budgetsync/internal/domain/currency"
)

// User is a Splitwise user as embedded in shares and returned by
// get_current_user.
type User struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email,omitempty"`
	DefaultCurrency string `json:"default_currency,omitempty"`
}

// FullName returns the first name followed by the last name when present.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	if last := strings.TrimSpace(u.LastName); last != "" {
		return u.FirstName + " " + last
	}
	return u.FirstName
}

// Category is the expense category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Share is one participant's part of an expense. Amounts are decimal dollar
// strings as returned by the API.
type Share struct {
	UserID     int64  `json:"user_id"`
	User       *User  `json:"user"`
	PaidShare  string `json:"paid_share"`
	OwedShare  string `json:"owed_share"`
	NetBalance string `json:"net_balance"`
}

// NetBalanceMilliunits parses the net balance and converts it to milliunits.
func (s Share) NetBalanceMilliunits() (currency.Milliunits, error) {
	d, err := currency.ParseDollars(s.NetBalance)
	if err != nil {
		return 0, fmt.Errorf("failed to parse net balance of user %d: %w", s.UserID, err)
	}
	return currency.DollarsToMilliunits(d), nil
}

// Expense represents an expense from the Splitwise API
type Expense struct {
	ID           int64      `json:"id"`
	GroupID      *int64     `json:"group_id"`
	Description  string     `json:"description"`
	Details      *string    `json:"details"`
	Payment      bool       `json:"payment"`
	Cost         string     `json:"cost"`
	CurrencyCode string     `json:"currency_code"`
	Date         time.Time  `json:"date"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at"`
	Category     *Category  `json:"category"`
	Users        []Share    `json:"users"`
}

// CategoryName returns the category name, or empty when the expense has none.
func (e *Expense) CategoryName() string {
	if e.Category == nil {
		return ""
	}
	return e.Category.Name
}

// ListExpensesOptions filters get_expenses.
type ListExpensesOptions struct {
	UpdatedAfter *time.Time
	Limit        int // 0 returns every expense
}

type expensesResponse struct {
	Expenses []Expense `json:"expenses"`
}

type currentUserResponse struct {
	User User `json:"user"`
}

// errorResponse covers both error shapes the API uses.
type errorResponse struct {
	Error  string              `json:"error"`
	Errors map[string][]string `json:"errors"`
}

func (r errorResponse) message() string {
	if r.Error != "" {
		return r.Error
	}
	var parts []string
	for field, msgs := range r.Errors {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return strings.Join(parts, "; ")
}
