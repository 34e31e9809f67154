// Package jobs defines the asynchronous work model for bulk imports. An
// upload returns immediately with a job ID; a background worker performs the
// actual parse and insert.
package jobs

import (
	"context"
	"time"
)

// Status is the lifecycle of one job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// ImportJob imports a workbook stored in the object bucket into one user's
// transaction history.
type ImportJob struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`

	// GCSURI points at the uploaded workbook.
	GCSURI   string `json:"gcs_uri"`
	Filename string `json:"filename,omitempty"`

	Status Status `json:"status"`

	// ImportedCount is filled on completion.
	ImportedCount int `json:"imported_count,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues import jobs.
type Publisher interface {
	PublishImport(ctx context.Context, job *ImportJob) error
	Close() error
}

// Handler processes one job; a returned error marks the job for retry.
type Handler func(ctx context.Context, job *ImportJob) error

// Consumer drains the queue with a Handler.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

// Store tracks job state for status polling.
type Store interface {
	SaveJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, jobID string) (*ImportJob, error)
	ListJobs(ctx context.Context, filter Filter) ([]*ImportJob, error)
}

// Filter narrows ListJobs results.
type Filter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}
