package queue

import "errors"

// Queue errors.
var (
	ErrItemNotFound    = errors.New("queue item not found")
	ErrUnknownWorkType = errors.New("no processor registered for work type")
	ErrNotFailed       = errors.New("only failed items can be requeued")

	// ErrStaleClaim is returned when a status update carries a claim token
	// that no longer matches the stored one. The item was reclaimed by a
	// later dispatch run after this run's claim timed out.
	ErrStaleClaim = errors.New("claim token does not match, item was reclaimed")
)
