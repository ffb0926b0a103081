// Package postgres provides the PostgreSQL implementation of the queue
// repository, including the atomic batch claim.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storeops/opsqueue/internal/queue"
)

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL queue repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const itemColumns = `
	id, work_type, payload, COALESCE(idempotency_key, ''), status,
	attempts, max_attempts, COALESCE(last_error, ''),
	COALESCE(claim_token::text, ''), created_at, updated_at,
	last_attempt_at, sent_at
`

func scanItem(row pgx.Row, item *queue.Item) error {
	return row.Scan(
		&item.ID,
		&item.WorkType,
		&item.Payload,
		&item.IdempotencyKey,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.LastError,
		&item.ClaimToken,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.LastAttemptAt,
		&item.SentAt,
	)
}

// Enqueue inserts a new pending item. A duplicate idempotency key for the
// same work type loads the existing item instead of inserting.
func (r *Repository) Enqueue(ctx context.Context, item *queue.Item) (bool, error) {
	insertQuery := `
		INSERT INTO queue_items (work_type, payload, idempotency_key, max_attempts)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (work_type, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, insertQuery,
		item.WorkType,
		item.Payload,
		item.IdempotencyKey,
		item.MaxAttempts,
	).Scan(&item.ID, &item.Status, &item.CreatedAt, &item.UpdatedAt)

	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("enqueue item: %w", err)
	}

	// Conflict: a producer already enqueued this business event.
	existingQuery := fmt.Sprintf(`
		SELECT %s FROM queue_items
		WHERE work_type = $1 AND idempotency_key = $2
	`, itemColumns)

	var existing queue.Item
	if err := scanItem(r.db.QueryRow(ctx, existingQuery, item.WorkType, item.IdempotencyKey), &existing); err != nil {
		return false, fmt.Errorf("load deduplicated item: %w", err)
	}
	*item = existing
	return true, nil
}

// GetItem retrieves a queue item by ID.
func (r *Repository) GetItem(ctx context.Context, id string) (*queue.Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_items WHERE id = $1`, itemColumns)

	var item queue.Item
	err := scanItem(r.db.QueryRow(ctx, query, id), &item)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// ListItems returns items matching the filter, newest first.
func (r *Repository) ListItems(ctx context.Context, filter queue.ListFilter) ([]queue.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM queue_items
		WHERE ($1 = '' OR work_type = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, itemColumns)

	limit := filter.Limit
	if limit <= 0 {
		limit = queue.DefaultListLimit
	}

	rows, err := r.db.Query(ctx, query, filter.WorkType, string(filter.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListPending returns up to limit pending items for the work type in FIFO order.
func (r *Repository) ListPending(ctx context.Context, workType string, limit int) ([]queue.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM queue_items
		WHERE work_type = $1 AND status = 'pending'
		ORDER BY created_at
		LIMIT $2
	`, itemColumns)

	rows, err := r.db.Query(ctx, query, workType, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ClaimBatch atomically claims up to limit items in one statement. Row locks
// with SKIP LOCKED make concurrent claims select disjoint sets; the
// pending-or-abandoned condition is re-checked under the lock, so a plain
// read-then-write race cannot occur. The whole batch shares one claim token
// generated here; guarded updates match on (id, token), so per-item
// uniqueness is not required.
func (r *Repository) ClaimBatch(ctx context.Context, workType string, limit int, claimTimeout time.Duration) ([]*queue.Item, error) {
	query := `
		WITH claimable AS (
			SELECT id
			FROM queue_items
			WHERE work_type = $1
			  AND attempts < max_attempts
			  AND (
			      status = 'pending'
			      OR (status = 'processing' AND last_attempt_at < $2)
			  )
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE queue_items qi
			SET status = 'processing',
			    claim_token = $4::uuid,
			    attempts = qi.attempts + 1,
			    last_attempt_at = now(),
			    updated_at = now()
			FROM claimable c
			WHERE qi.id = c.id
			RETURNING qi.id, qi.work_type, qi.payload,
			          COALESCE(qi.idempotency_key, ''), qi.status,
			          qi.attempts, qi.max_attempts, COALESCE(qi.last_error, ''),
			          COALESCE(qi.claim_token::text, ''), qi.created_at,
			          qi.updated_at, qi.last_attempt_at, qi.sent_at
		)
		SELECT * FROM claimed ORDER BY created_at
	`

	cutoff := time.Now().Add(-claimTimeout)
	token := uuid.NewString()

	rows, err := r.db.Query(ctx, query, workType, cutoff, limit, token)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	items := make([]*queue.Item, 0)
	for rows.Next() {
		var item queue.Item
		if err := scanItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan claimed item: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed items: %w", err)
	}

	return items, nil
}

// FailExpiredClaims sweeps abandoned processing items that exhausted their
// attempts to failed so they surface to operators.
func (r *Repository) FailExpiredClaims(ctx context.Context, workType string, claimTimeout time.Duration) (int64, error) {
	query := `
		UPDATE queue_items
		SET status = 'failed',
		    last_error = 'claim expired: processing did not complete',
		    claim_token = NULL,
		    updated_at = now()
		WHERE work_type = $1
		  AND status = 'processing'
		  AND last_attempt_at < $2
		  AND attempts >= max_attempts
	`
	cutoff := time.Now().Add(-claimTimeout)

	result, err := r.db.Exec(ctx, query, workType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail expired claims: %w", err)
	}
	return result.RowsAffected(), nil
}

// MarkSent records successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id, claimToken string) error {
	query := `
		UPDATE queue_items
		SET status = 'sent',
		    last_error = NULL,
		    claim_token = NULL,
		    sent_at = now(),
		    updated_at = now()
		WHERE id = $1 AND claim_token = $2 AND status = 'processing'
	`
	return r.guardedUpdate(ctx, query, id, claimToken)
}

// MarkSkipped records a legitimate no-op with its reason.
func (r *Repository) MarkSkipped(ctx context.Context, id, claimToken, reason string) error {
	query := `
		UPDATE queue_items
		SET status = 'skipped',
		    last_error = $3,
		    claim_token = NULL,
		    updated_at = now()
		WHERE id = $1 AND claim_token = $2 AND status = 'processing'
	`
	return r.guardedUpdate(ctx, query, id, claimToken, reason)
}

// MarkFailed records a terminal failure.
func (r *Repository) MarkFailed(ctx context.Context, id, claimToken string, cause error) error {
	query := `
		UPDATE queue_items
		SET status = 'failed',
		    last_error = $3,
		    claim_token = NULL,
		    updated_at = now()
		WHERE id = $1 AND claim_token = $2 AND status = 'processing'
	`
	return r.guardedUpdate(ctx, query, id, claimToken, cause.Error())
}

// MarkForRetry returns the item to pending, keeping the failure reason.
func (r *Repository) MarkForRetry(ctx context.Context, id, claimToken string, cause error) error {
	query := `
		UPDATE queue_items
		SET status = 'pending',
		    last_error = $3,
		    claim_token = NULL,
		    updated_at = now()
		WHERE id = $1 AND claim_token = $2 AND status = 'processing'
	`
	return r.guardedUpdate(ctx, query, id, claimToken, cause.Error())
}

// guardedUpdate runs a status update that must match the claim token.
// Zero rows affected means either the item is gone or it was reclaimed.
func (r *Repository) guardedUpdate(ctx context.Context, query, id, claimToken string, args ...any) error {
	queryArgs := append([]any{id, claimToken}, args...)

	result, err := r.db.Exec(ctx, query, queryArgs...)
	if err != nil {
		return fmt.Errorf("update item status: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return queue.ErrItemNotFound
	}
	return queue.ErrStaleClaim
}

// Requeue resets a failed item to pending for another round of attempts.
func (r *Repository) Requeue(ctx context.Context, id string) error {
	query := `
		UPDATE queue_items
		SET status = 'pending',
		    attempts = 0,
		    last_error = NULL,
		    claim_token = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'failed'
	`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("requeue item: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return queue.ErrItemNotFound
	}
	return queue.ErrNotFailed
}

// GetStats returns queue size counters by status.
func (r *Repository) GetStats(ctx context.Context) (*queue.Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM queue_items
	`
	var stats queue.Stats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Sent,
		&stats.Skipped,
		&stats.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

func collectItems(rows pgx.Rows) ([]queue.Item, error) {
	items := make([]queue.Item, 0)
	for rows.Next() {
		var item queue.Item
		if err := scanItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
