// Package postgres provides the PostgreSQL implementation of the jobs
// repository. Completion, failure and cancellation are conditional updates
// on the status column so a durably recorded cancel always wins over a late
// generator result.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storeops/opsqueue/internal/jobs"
)

// Repository implements jobs.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL jobs repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const jobColumns = `
	id, job_type, spec, status, progress, result,
	attempts, max_attempts, COALESCE(last_error, ''),
	COALESCE(claim_token::text, ''), created_at, updated_at,
	last_attempt_at, finished_at
`

func scanJob(row pgx.Row, job *jobs.Job) error {
	return row.Scan(
		&job.ID,
		&job.JobType,
		&job.Spec,
		&job.Status,
		&job.Progress,
		&job.Result,
		&job.Attempts,
		&job.MaxAttempts,
		&job.LastError,
		&job.ClaimToken,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.LastAttemptAt,
		&job.FinishedAt,
	)
}

// Create inserts a new queued job.
func (r *Repository) Create(ctx context.Context, job *jobs.Job) error {
	query := `
		INSERT INTO jobs (job_type, spec, max_attempts)
		VALUES ($1, $2, $3)
		RETURNING id, status, progress, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		job.JobType,
		job.Spec,
		job.MaxAttempts,
	).Scan(&job.ID, &job.Status, &job.Progress, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (r *Repository) Get(ctx context.Context, id string) (*jobs.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)

	var job jobs.Job
	err := scanJob(r.db.QueryRow(ctx, query, id), &job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs of the given type, newest first.
func (r *Repository) List(ctx context.Context, jobType string, limit int) ([]jobs.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE ($1 = '' OR job_type = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, jobColumns)

	if limit <= 0 {
		limit = jobs.DefaultListLimit
	}

	rows, err := r.db.Query(ctx, query, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	result := make([]jobs.Job, 0)
	for rows.Next() {
		var job jobs.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return result, nil
}

// ClaimBatch atomically claims up to limit queued (or abandoned) jobs.
// Same locking discipline as the queue claim: SKIP LOCKED keeps concurrent
// claims disjoint, and the batch shares one claim token generated here.
func (r *Repository) ClaimBatch(ctx context.Context, jobType string, limit int, claimTimeout time.Duration) ([]*jobs.Job, error) {
	query := `
		WITH claimable AS (
			SELECT id
			FROM jobs
			WHERE job_type = $1
			  AND attempts < max_attempts
			  AND (
			      status = 'queued'
			      OR (status = 'processing' AND last_attempt_at < $2)
			  )
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE jobs j
			SET status = 'processing',
			    claim_token = $4::uuid,
			    attempts = j.attempts + 1,
			    last_attempt_at = now(),
			    updated_at = now()
			FROM claimable c
			WHERE j.id = c.id
			RETURNING j.id, j.job_type, j.spec, j.status, j.progress, j.result,
			          j.attempts, j.max_attempts, COALESCE(j.last_error, ''),
			          COALESCE(j.claim_token::text, ''), j.created_at,
			          j.updated_at, j.last_attempt_at, j.finished_at
		)
		SELECT * FROM claimed ORDER BY created_at
	`

	cutoff := time.Now().Add(-claimTimeout)
	token := uuid.NewString()

	rows, err := r.db.Query(ctx, query, jobType, cutoff, limit, token)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	claimed := make([]*jobs.Job, 0)
	for rows.Next() {
		var job jobs.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		claimed = append(claimed, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed jobs: %w", err)
	}

	return claimed, nil
}

// FailExpiredClaims sweeps abandoned processing jobs that exhausted their
// attempts to failed so they surface to observers.
func (r *Repository) FailExpiredClaims(ctx context.Context, jobType string, claimTimeout time.Duration) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'failed',
		    last_error = 'claim expired: processing did not complete',
		    claim_token = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE job_type = $1
		  AND status = 'processing'
		  AND last_attempt_at < $2
		  AND attempts >= max_attempts
	`
	cutoff := time.Now().Add(-claimTimeout)

	result, err := r.db.Exec(ctx, query, jobType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail expired claims: %w", err)
	}
	return result.RowsAffected(), nil
}

// UpdateProgress raises the stored progress. GREATEST keeps it monotonic
// even if reports arrive out of order.
func (r *Repository) UpdateProgress(ctx context.Context, id, claimToken string, progress int) error {
	query := `
		UPDATE jobs
		SET progress = GREATEST(progress, LEAST(GREATEST($3, 0), 100)),
		    updated_at = now()
		WHERE id = $1 AND claim_token = $2 AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, claimToken, progress)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return jobs.ErrStaleClaim
	}
	return nil
}

// Complete commits a generator result, unless a cancel was recorded first.
func (r *Repository) Complete(ctx context.Context, id, claimToken string, result json.RawMessage) (jobs.Status, error) {
	query := `
		UPDATE jobs
		SET status = 'done',
		    progress = 100,
		    result = $3,
		    last_error = NULL,
		    claim_token = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $1 AND claim_token = $2 AND status = 'processing'
	`
	res, err := r.db.Exec(ctx, query, id, claimToken, result)
	if err != nil {
		return "", fmt.Errorf("complete job: %w", err)
	}
	if res.RowsAffected() > 0 {
		return jobs.StatusDone, nil
	}

	return r.resolveLostUpdate(ctx, id)
}

// Fail records a failed attempt: back to queued while attempts remain,
// terminal failed otherwise. A recorded cancel wins here too.
func (r *Repository) Fail(ctx context.Context, id, claimToken string, cause error) (jobs.Status, error) {
	query := `
		UPDATE jobs
		SET status = CASE WHEN attempts < max_attempts THEN 'queued' ELSE 'failed' END,
		    finished_at = CASE WHEN attempts < max_attempts THEN finished_at ELSE now() END,
		    last_error = $3,
		    claim_token = NULL,
		    updated_at = now()
		WHERE id = $1 AND claim_token = $2 AND status = 'processing'
		RETURNING status
	`
	var status jobs.Status
	err := r.db.QueryRow(ctx, query, id, claimToken, cause.Error()).Scan(&status)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("fail job: %w", err)
	}

	return r.resolveLostUpdate(ctx, id)
}

// resolveLostUpdate figures out why a claim-guarded update matched nothing.
// A recorded cancel is the expected case and is reported as the final
// status; anything else is a stale claim.
func (r *Repository) resolveLostUpdate(ctx context.Context, id string) (jobs.Status, error) {
	var status jobs.Status
	err := r.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", jobs.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	if status == jobs.StatusCanceled {
		return jobs.StatusCanceled, nil
	}
	return "", jobs.ErrStaleClaim
}

// Cancel flips a non-terminal job to canceled.
func (r *Repository) Cancel(ctx context.Context, id string) (jobs.Status, error) {
	query := `
		UPDATE jobs
		SET status = 'canceled',
		    claim_token = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('done', 'failed', 'canceled')
		RETURNING status
	`
	var status jobs.Status
	err := r.db.QueryRow(ctx, query, id).Scan(&status)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("cancel job: %w", err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return "", fmt.Errorf("check job exists: %w", err)
	}
	if !exists {
		return "", jobs.ErrJobNotFound
	}
	return "", jobs.ErrJobAlreadyTerminal
}
