package scheduler

import (
	"context"
	"time"
)

// Job is a unit of work executed by the worker pool.
type Job interface {
	// Execute runs the job. ctx carries the job timeout.
	Execute(ctx context.Context) error

	// AccountID returns the linked account the job works on.
	AccountID() string

	// Description returns a human-readable description for logs.
	Description() string

	// Timeout bounds Execute; zero means the pool default.
	Timeout() time.Duration
}
