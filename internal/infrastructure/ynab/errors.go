package ynab

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the YNAB API.
type APIError struct {
	StatusCode int
	ErrorDetail
}

func (e *APIError) Error() string {
	if e.Name == "" && e.Detail == "" {
		return fmt.Sprintf("ynab API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("ynab API error (status %d): %s - %s", e.StatusCode, e.Name, e.Detail)
}

// Retryable reports whether the request may succeed when repeated.
// Client errors other than 429 are permanent.
func (e *APIError) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode < 400 || e.StatusCode >= 500
}
