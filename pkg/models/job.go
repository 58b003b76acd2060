package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job tracks one submitted batch of SQL commands. The API returns a job_id on
// POST /api/v1/jobs; the client polls GET /api/v1/jobs/{job_id} until status is
// completed or failed.
//
// A job only becomes failed when the batch itself cannot proceed (no
// connection, internal fault). Individual command errors are recorded in
// Results and the job still completes.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	Status         string          `json:"status"`
	Commands       []string        `json:"commands"`
	Results        []CommandResult `json:"results"`
	SuccessCount   int             `json:"success_count"`
	ErrorCount     int             `json:"error_count"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// RunningJob is the observability view of an in-flight job.
type RunningJob struct {
	ID             uuid.UUID `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	CommandCount   int       `json:"command_count"`
	CompletedCount int       `json:"completed_count"`
}
