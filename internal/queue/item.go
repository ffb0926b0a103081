package queue

import (
	"encoding/json"
	"time"
)

// Status represents the status of a queue item.
type Status string

// Queue item statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// Item represents one durable unit of work in the queue.
type Item struct {
	ID             string          `json:"id"`
	WorkType       string          `json:"work_type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LastError      string          `json:"last_error,omitempty"`
	ClaimToken     string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
}

// Stats contains queue size counters by status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
}
