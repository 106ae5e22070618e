package ynab

import "budgetsync/internal/domain/currency"

// MaxMemoLength is the longest memo YNAB accepts.
const MaxMemoLength = 500

// Cleared statuses
const (
	ClearedStatusCleared   = "cleared"
	ClearedStatusUncleared = "uncleared"
)

// SaveTransaction is the body of a create or update.
type SaveTransaction struct {
	AccountID  string              `json:"account_id,omitempty"`
	CategoryID string              `json:"category_id,omitempty"`
	Amount     currency.Milliunits `json:"amount"`
	PayeeName  string              `json:"payee_name,omitempty"`
	Date       string              `json:"date,omitempty"` // YYYY-MM-DD
	Memo       string              `json:"memo,omitempty"`
	Cleared    string              `json:"cleared,omitempty"`
	Approved   *bool               `json:"approved,omitempty"`
}

// Transaction represents a transaction returned by the YNAB API
type Transaction struct {
	ID         string              `json:"id"`
	Date       string              `json:"date"`
	Amount     currency.Milliunits `json:"amount"`
	Memo       *string             `json:"memo"`
	Cleared    string              `json:"cleared"`
	Approved   bool                `json:"approved"`
	AccountID  string              `json:"account_id"`
	PayeeID    *string             `json:"payee_id"`
	PayeeName  *string             `json:"payee_name"`
	CategoryID *string             `json:"category_id"`
	Deleted    bool                `json:"deleted"`
}

type saveTransactionWrapper struct {
	Transaction SaveTransaction `json:"transaction"`
}

type transactionResponse struct {
	Data struct {
		Transaction     Transaction `json:"transaction"`
		ServerKnowledge int64       `json:"server_knowledge"`
	} `json:"data"`
}

// ErrorDetail is the error object of a YNAB error response.
type ErrorDetail struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

type errorResponse struct {
	Error ErrorDetail `json:"error"`
}
