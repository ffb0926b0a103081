package queue

// RetryPolicy decides where an item goes after a failed processing attempt.
// Retries are bounded by count, not by elapsed time: the spacing between
// attempts is whatever the dispatch cadence is, so the policy computes no
// backoff of its own.
type RetryPolicy struct{}

// Decide returns the next status for a failed item: pending while attempts
// remain, failed once the ceiling is reached. Attempts are incremented at
// claim time, so the current count already includes the attempt that failed.
func (RetryPolicy) Decide(item *Item) Status {
	if item.Attempts < item.MaxAttempts {
		return StatusPending
	}
	return StatusFailed
}
