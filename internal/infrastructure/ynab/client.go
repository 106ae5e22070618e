package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"budgetsync/internal/shared/retry"
)

const (
	DefaultBaseURL = "https://api.ynab.com/v1"
	defaultTimeout = 30 * time.Second
)

// Client handles communication with the YNAB API
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	policy     retry.Policy
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a new YNAB API client
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		policy:  retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateTransaction creates a single transaction in the budget.
func (c *Client) CreateTransaction(ctx context.Context, budgetID string, txn SaveTransaction) (*Transaction, error) {
	path := fmt.Sprintf("/budgets/%s/transactions", url.PathEscape(budgetID))
	out, err := c.send(ctx, http.MethodPost, path, &saveTransactionWrapper{Transaction: txn})
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return out, nil
}

// UpdateTransaction replaces the editable fields of an existing transaction.
func (c *Client) UpdateTransaction(ctx context.Context, budgetID, transactionID string, txn SaveTransaction) (*Transaction, error) {
	path := fmt.Sprintf("/budgets/%s/transactions/%s", url.PathEscape(budgetID), url.PathEscape(transactionID))
	out, err := c.send(ctx, http.MethodPut, path, &saveTransactionWrapper{Transaction: txn})
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction %s: %w", transactionID, err)
	}
	return out, nil
}

// DeleteTransaction deletes a transaction and returns it as it was.
func (c *Client) DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*Transaction, error) {
	path := fmt.Sprintf("/budgets/%s/transactions/%s", url.PathEscape(budgetID), url.PathEscape(transactionID))
	out, err := c.send(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to delete transaction %s: %w", transactionID, err)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*Transaction, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return retry.DoValue(ctx, c.policy, func() (*Transaction, error) {
		txn, err := c.do(ctx, method, c.baseURL+path, payload)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, retry.Permanent(err)
		}
		return txn, err
	})
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (*Transaction, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			apiErr.ErrorDetail = errResp.Error
		}
		if apiErr.Detail == "" {
			apiErr.Detail = string(body)
		}
		return nil, apiErr
	}

	var txnResp transactionResponse
	if err := json.Unmarshal(body, &txnResp); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return &txnResp.Data.Transaction, nil
}
