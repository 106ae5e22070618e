package syncrecord

import "context"

// Repository defines the interface for sync record data access
type Repository interface {
	// Insert stores a new record; storage.ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, rec *Record) error

	// ListByStatus returns the account's records in status, newest first.
	ListByStatus(ctx context.Context, accountID string, status Status) ([]*Record, error)

	// ListByID returns every record matching (accountID, id). More than one
	// row means the key derivation is broken.
	ListByID(ctx context.Context, accountID, id string) ([]*Record, error)

	// ListRecent returns up to limit of the account's records, newest first.
	ListRecent(ctx context.Context, accountID string, limit int) ([]*Record, error)

	// Update overwrites status, updated_at and completed_at of an existing
	// record; storage.ErrConditionFailed if it does not exist.
	Update(ctx context.Context, rec *Record) error
}
