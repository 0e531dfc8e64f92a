package jobs

import (
	"context"
	"time"
)

// Job is the interface all job types implement. Jobs are state machines:
// Start returns the initial work units, OnComplete handles each result
// and may return follow-up units, and Done reports when the job has
// nothing left to do.
//
// Jobs must be resumable. After a server restart the scheduler
// reconstructs the job via its registered factory and calls Start
// again, so Start must check existing state and only emit work units
// for what remains.
type Job interface {
	// ID returns the DefraDB record ID. Empty until persisted.
	ID() string

	// SetRecordID sets the DefraDB record ID after persistence.
	SetRecordID(id string)

	// Type returns the job type identifier.
	Type() string

	// Start loads state and returns the initial work units.
	Start(ctx context.Context) ([]WorkUnit, error)

	// OnComplete handles a finished work unit and may return follow-up
	// work units. Called from the scheduler's result loop; implementations
	// must be safe for concurrent calls with Status and Done.
	OnComplete(ctx context.Context, result WorkResult) ([]WorkUnit, error)

	// Done reports whether the job has completed all its work.
	Done() bool

	// Status returns the current state as key-value pairs for reporting.
	Status(ctx context.Context) (map[string]string, error)

	// Progress returns per-provider work unit counts.
	Progress() map[string]ProviderProgress

	// MetricsFor returns default metrics attribution for this job's
	// work units. Used by the scheduler when a unit has no Metrics set.
	// May return nil.
	MetricsFor() *WorkUnitMetrics
}

// JobFactory reconstructs a job from its persisted record so it can be
// resumed after a restart.
type JobFactory func(ctx context.Context, recordID string, metadata map[string]any) (Job, error)

// Status represents the current state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record represents a job record stored in DefraDB.
// This maps to the Job schema.
type Record struct {
	ID          string         `json:"_docID,omitempty"`
	JobType     string         `json:"job_type"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewRecord creates a new job record for submission.
func NewRecord(jobType string, metadata map[string]any) *Record {
	return &Record{
		JobType:   jobType,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
}
