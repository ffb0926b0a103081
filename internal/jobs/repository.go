package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Repository defines the interface for job persistence.
//
// Completion and cancellation are compare-and-set updates on the status
// column: the runner never interrupts an in-flight generator call, so a
// cancel that was durably recorded while the generator was running must win
// over the late result.
type Repository interface {
	// Create inserts a new queued job and fills its ID and timestamps.
	Create(ctx context.Context, job *Job) error

	// Get returns a job by ID or ErrJobNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// List returns jobs of the given type (empty means all), newest first.
	List(ctx context.Context, jobType string, limit int) ([]Job, error)

	// ClaimBatch atomically transitions up to limit claimable jobs from
	// queued to processing, exactly like the queue claim: fresh claim token,
	// attempts+1, last_attempt_at. Abandoned processing jobs past the claim
	// timeout are claimable again while attempts remain. Jobs are returned
	// in creation order and two concurrent calls never overlap.
	ClaimBatch(ctx context.Context, jobType string, limit int, claimTimeout time.Duration) ([]*Job, error)

	// FailExpiredClaims marks processing jobs whose claim is older than
	// claimTimeout and whose attempts are exhausted as failed. Returns the
	// number of jobs swept.
	FailExpiredClaims(ctx context.Context, jobType string, claimTimeout time.Duration) (int64, error)

	// UpdateProgress raises the progress of a processing job. The stored
	// value never decreases; updates on reclaimed or terminal jobs return
	// ErrStaleClaim.
	UpdateProgress(ctx context.Context, id, claimToken string, progress int) error

	// Complete commits the result of a finished generator call, but only if
	// the job is still processing under this claim. When a cancel was
	// recorded first the result is discarded and the returned status is
	// StatusCanceled; the caller must treat that as the final word.
	Complete(ctx context.Context, id, claimToken string, result json.RawMessage) (Status, error)

	// Fail records a failed attempt: back to queued while attempts remain,
	// terminal failed otherwise. As with Complete, a recorded cancel wins
	// and StatusCanceled is returned.
	Fail(ctx context.Context, id, claimToken string, cause error) (Status, error)

	// Cancel flips a non-terminal job to canceled and returns the new
	// status. Cancelling a terminal job returns ErrJobAlreadyTerminal.
	Cancel(ctx context.Context, id string) (Status, error)
}
