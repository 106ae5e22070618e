package linkedaccount

import "context"

// Repository defines the interface for linked account data access
type Repository interface {
	// Upsert inserts the account or, when the id exists, updates its YNAB
	// links and updated_at. CreatedAt of an existing row is preserved.
	Upsert(ctx context.Context, acc *Account) (*Account, error)

	// GetByID returns ErrAccountNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*Account, error)

	// List returns every linked account.
	List(ctx context.Context) ([]*Account, error)
}
