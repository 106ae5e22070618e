package ynab

import (
	"context"
)

// ClientInterface defines the methods required from the YNAB API client
type ClientInterface interface {
	CreateTransaction(ctx context.Context, budgetID string, txn SaveTransaction) (*Transaction, error)
	UpdateTransaction(ctx context.Context, budgetID, transactionID string, txn SaveTransaction) (*Transaction, error)
	DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*Transaction, error)
}
