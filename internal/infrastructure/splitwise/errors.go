package splitwise

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Splitwise API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("splitwise API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("splitwise API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
// Client errors other than 429 are permanent.
func (e *APIError) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode < 400 || e.StatusCode >= 500
}
