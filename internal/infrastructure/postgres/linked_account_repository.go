package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"budgetsync/internal/domain/linkedaccount"
)

// LinkedAccountRepository implements linkedaccount.Repository for PostgreSQL
type LinkedAccountRepository struct {
	db *DB
}

var _ linkedaccount.Repository = (*LinkedAccountRepository)(nil)

// NewLinkedAccountRepository creates a new PostgreSQL linked account repository
func NewLinkedAccountRepository(db *DB) *LinkedAccountRepository {
	return &LinkedAccountRepository{db: db}
}

const linkedAccountColumns = `id, email, splitwise_group_id, splitwise_user_id,
	ynab_budget_id, ynab_account_id, ynab_uncategorized_category_id, created_at, updated_at`

// Upsert inserts the account or refreshes the YNAB links of an existing one.
func (r *LinkedAccountRepository) Upsert(ctx context.Context, acc *linkedaccount.Account) (*linkedaccount.Account, error) {
	query := `
		INSERT INTO linked_accounts (` + linkedAccountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			ynab_budget_id = EXCLUDED.ynab_budget_id,
			ynab_account_id = EXCLUDED.ynab_account_id,
			ynab_uncategorized_category_id = EXCLUDED.ynab_uncategorized_category_id,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + linkedAccountColumns

	row := r.db.QueryRowContext(ctx, query,
		acc.ID, acc.Email, acc.SplitwiseGroupID, acc.SplitwiseUserID,
		acc.YnabBudgetID, acc.YnabAccountID, acc.YnabUncategorizedCategoryID,
		acc.CreatedAt, acc.UpdatedAt,
	)

	stored, err := scanLinkedAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert linked account: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a linked account by its ID
func (r *LinkedAccountRepository) GetByID(ctx context.Context, id string) (*linkedaccount.Account, error) {
	query := `SELECT ` + linkedAccountColumns + ` FROM linked_accounts WHERE id = $1`

	acc, err := scanLinkedAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, linkedaccount.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return acc, nil
}

// List returns every linked account, oldest first.
func (r *LinkedAccountRepository) List(ctx context.Context) ([]*linkedaccount.Account, error) {
	query := `SELECT ` + linkedAccountColumns + ` FROM linked_accounts ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*linkedaccount.Account
	for rows.Next() {
		acc, err := scanLinkedAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked accounts: %w", err)
	}
	return accounts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLinkedAccount(s scanner) (*linkedaccount.Account, error) {
	var acc linkedaccount.Account
	err := s.Scan(
		&acc.ID, &acc.Email, &acc.SplitwiseGroupID, &acc.SplitwiseUserID,
		&acc.YnabBudgetID, &acc.YnabAccountID, &acc.YnabUncategorizedCategoryID,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}
