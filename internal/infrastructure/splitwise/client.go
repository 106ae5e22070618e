package splitwise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"budgetsync/internal/shared/retry"
)

const (
	DefaultBaseURL  = "https://secure.splitwise.com/api/v3.0"
	defaultTimeout  = 30 * time.Second
	expensesPath    = "/get_expenses"
	currentUserPath = "/get_current_user"

	updatedAfterLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Client handles communication with the Splitwise API
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

// NewClient creates a new Splitwise API client
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

// ListExpenses fetches the expenses of a group, optionally only those updated
// after opts.UpdatedAfter.
func (c *Client) ListExpenses(ctx context.Context, groupID int64, opts ListExpensesOptions) ([]Expense, error) {
	query := url.Values{}
	query.Set("group_id", strconv.FormatInt(groupID, 10))
	query.Set("limit", strconv.Itoa(opts.Limit))
	if opts.UpdatedAfter != nil {
		query.Set("updated_after", opts.UpdatedAfter.UTC().Format(updatedAfterLayout))
	}

	var resp expensesResponse
	if err := c.get(ctx, expensesPath, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to list expenses for group %d: %w", groupID, err)
	}
	return resp.Expenses, nil
}

// GetCurrentUser returns the user that owns the API key.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var resp currentUserResponse
	if err := c.get(ctx, currentUserPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &resp.User, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(ctx, c.policy, func() error {
		err := c.do(ctx, endpoint, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			apiErr.Message = errResp.message()
		}
		if apiErr.Message == "" {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}
