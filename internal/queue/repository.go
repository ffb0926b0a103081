// Package queue implements the durable work queue: typed items, atomic
// batch claiming and a batch dispatcher with bounded retries.
package queue

import (
	"context"
	"time"
)

// Repository defines the interface for queue item persistence.
type Repository interface {
	// Enqueue inserts a new pending item and fills its ID and timestamps.
	// When the item carries an idempotency key that already exists for the
	// work type, no row is inserted: the existing item is loaded into item
	// and deduped is true.
	Enqueue(ctx context.Context, item *Item) (deduped bool, err error)

	// GetItem returns an item by ID or ErrItemNotFound.
	GetItem(ctx context.Context, id string) (*Item, error)

	// ListItems returns items matching the filter, newest first.
	ListItems(ctx context.Context, filter ListFilter) ([]Item, error)

	// ListPending returns up to limit pending items for the work type,
	// ordered by creation time ascending.
	ListPending(ctx context.Context, workType string, limit int) ([]Item, error)

	// ClaimBatch atomically transitions up to limit claimable items from
	// pending to processing: sets a fresh claim token, increments attempts
	// and stamps last_attempt_at. Processing items whose claim is older than
	// claimTimeout count as abandoned and are claimable again while attempts
	// remain. Two concurrent calls never return overlapping items. Items are
	// returned ordered by creation time ascending.
	ClaimBatch(ctx context.Context, workType string, limit int, claimTimeout time.Duration) ([]*Item, error)

	// FailExpiredClaims marks processing items whose claim is older than
	// claimTimeout and whose attempts are exhausted as failed. Returns the
	// number of items swept.
	FailExpiredClaims(ctx context.Context, workType string, claimTimeout time.Duration) (int64, error)

	// MarkSent records successful delivery. The claim token must still
	// match, otherwise ErrStaleClaim.
	MarkSent(ctx context.Context, id, claimToken string) error

	// MarkSkipped records a legitimate no-op with its reason.
	MarkSkipped(ctx context.Context, id, claimToken, reason string) error

	// MarkFailed records a terminal failure.
	MarkFailed(ctx context.Context, id, claimToken string, cause error) error

	// MarkForRetry returns the item to pending, keeping the failure reason.
	MarkForRetry(ctx context.Context, id, claimToken string, cause error) error

	// Requeue resets a failed item to pending with zero attempts. Returns
	// ErrNotFailed when the item is in any other status.
	Requeue(ctx context.Context, id string) error

	// GetStats returns queue size counters by status.
	GetStats(ctx context.Context) (*Stats, error)
}

// ListFilter narrows ListItems results. Zero values mean no restriction.
type ListFilter struct {
	WorkType string
	Status   Status
	Limit    int
}
