package splitwise

import (
	"context"
)

// ClientInterface defines the methods required from the Splitwise API client
type ClientInterface interface {
	ListExpenses(ctx context.Context, groupID int64, opts ListExpensesOptions) ([]Expense, error)
	GetCurrentUser(ctx context.Context) (*User, error)
}
