// Package jobs implements long-running generation jobs: an observable
// superset of queue items with progress, a result and cooperative
// cancellation, plus the client-side status poller.
package jobs

import (
	"encoding/json"
	"time"
)

// Status represents the status of a job.
type Status string

// Job statuses.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Job represents one long-running generation work unit. Progress is
// 0-100 and never decreases while the job is not terminal; the result is
// populated only when the job is done.
type Job struct {
	ID            string          `json:"id"`
	JobType       string          `json:"job_type"`
	Spec          json.RawMessage `json:"spec"`
	Status        Status          `json:"status"`
	Progress      int             `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	LastError     string          `json:"last_error,omitempty"`
	ClaimToken    string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// StatusView is what external observers see when polling a job.
type StatusView struct {
	JobID    string          `json:"job_id"`
	Status   Status          `json:"status"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// View projects the observable part of a job.
func (j *Job) View() StatusView {
	return StatusView{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.LastError,
	}
}
