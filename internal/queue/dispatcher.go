package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DispatcherConfig contains dispatcher configuration.
type DispatcherConfig struct {
	// BatchSize bounds how many items one run claims when the trigger does
	// not say otherwise.
	BatchSize int
	// ClaimTimeout is how long a processing claim is honored before the
	// item counts as abandoned and becomes claimable again.
	ClaimTimeout time.Duration
	// DefaultMaxAttempts is applied to enqueued items that do not set an
	// explicit ceiling.
	DefaultMaxAttempts int
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:          25,
		ClaimTimeout:       5 * time.Minute,
		DefaultMaxAttempts: 3,
	}
}

// Summary describes what one dispatch run did.
type Summary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// Dispatcher drives claimed batches of queue items through their processors.
// It runs when triggered (cron or operator action) and completes within that
// invocation; there is no persistent worker loop. The repository's claim
// operation is the only guard against overlapping runs, so two triggers
// firing at once never process the same item twice.
type Dispatcher struct {
	config     DispatcherConfig
	repo       Repository
	retry      RetryPolicy
	processors map[string]Processor
}

// NewDispatcher creates a dispatcher with the given processors registered.
func NewDispatcher(config DispatcherConfig, repo Repository, processors ...Processor) *Dispatcher {
	procMap := make(map[string]Processor)
	for _, p := range processors {
		procMap[p.WorkType()] = p
	}
	return &Dispatcher{
		config:     config,
		repo:       repo,
		processors: procMap,
	}
}

// Register adds a processor, replacing any previous one for the work type.
func (d *Dispatcher) Register(p Processor) {
	d.processors[p.WorkType()] = p
}

// Run claims up to limit pending items for the work type and processes them
// sequentially in claim order. A limit of zero means the configured batch
// size. Running against an empty queue is a no-op returning a zero summary.
func (d *Dispatcher) Run(ctx context.Context, workType string, limit int) (Summary, error) {
	var summary Summary

	if _, ok := d.processors[workType]; !ok {
		return summary, fmt.Errorf("%w: %s", ErrUnknownWorkType, workType)
	}

	if limit <= 0 {
		limit = d.config.BatchSize
	}

	// Abandoned claims with exhausted attempts can no longer be retried;
	// sweep them to failed so they surface to operators instead of sitting
	// in processing forever.
	swept, err := d.repo.FailExpiredClaims(ctx, workType, d.config.ClaimTimeout)
	if err != nil {
		return summary, fmt.Errorf("fail expired claims: %w", err)
	}
	if swept > 0 {
		slog.Warn("swept expired claims", "work_type", workType, "count", swept)
	}

	items, err := d.repo.ClaimBatch(ctx, workType, limit, d.config.ClaimTimeout)
	if err != nil {
		return summary, fmt.Errorf("claim batch: %w", err)
	}

	if len(items) == 0 {
		return summary, nil
	}

	slog.Info("dispatching queue items", "work_type", workType, "count", len(items))
	recordBatchClaimed(workType, len(items))

	for _, item := range items {
		summary.Processed++
		d.processItem(ctx, item, &summary)
	}

	return summary, nil
}

func (d *Dispatcher) processItem(ctx context.Context, item *Item, summary *Summary) {
	start := time.Now()
	result := d.safeProcess(ctx, item)
	duration := time.Since(start)

	switch result.Outcome {
	case OutcomeSuccess:
		if err := d.repo.MarkSent(ctx, item.ID, item.ClaimToken); err != nil {
			slog.Error("failed to mark as sent", "item_id", item.ID, "error", err)
			return
		}
		summary.Sent++
		recordItemProcessed(item.WorkType, "sent")
		recordProcessDuration(item.WorkType, duration)
		slog.Debug("queue item sent", "item_id", item.ID, "duration", duration)

	case OutcomeSkip:
		if err := d.repo.MarkSkipped(ctx, item.ID, item.ClaimToken, result.Detail); err != nil {
			slog.Error("failed to mark as skipped", "item_id", item.ID, "error", err)
			return
		}
		summary.Skipped++
		recordItemProcessed(item.WorkType, "skipped")
		slog.Debug("queue item skipped", "item_id", item.ID, "reason", result.Detail)

	default:
		d.handleFailure(ctx, item, result.Detail, summary)
	}
}

// safeProcess invokes the processor, converting a panic into a failure
// outcome so one bad payload cannot take down the whole run.
func (d *Dispatcher) safeProcess(ctx context.Context, item *Item) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("processor panicked", "item_id", item.ID, "work_type", item.WorkType, "panic", r)
			result = Result{Outcome: OutcomeFailure, Detail: fmt.Sprintf("processor panic: %v", r)}
		}
	}()

	return d.processors[item.WorkType].Process(ctx, item.Payload)
}

func (d *Dispatcher) handleFailure(ctx context.Context, item *Item, detail string, summary *Summary) {
	cause := fmt.Errorf("%s", detail)

	slog.Warn("processing failed",
		"item_id", item.ID,
		"work_type", item.WorkType,
		"attempt", item.Attempts,
		"max_attempts", item.MaxAttempts,
		"error", detail,
	)

	if d.retry.Decide(item) == StatusPending {
		if err := d.repo.MarkForRetry(ctx, item.ID, item.ClaimToken, cause); err != nil {
			slog.Error("failed to mark for retry", "item_id", item.ID, "error", err)
			return
		}
		summary.Retried++
		recordItemProcessed(item.WorkType, "retried")
		return
	}

	if err := d.repo.MarkFailed(ctx, item.ID, item.ClaimToken, fmt.Errorf("max attempts exceeded: %w", cause)); err != nil {
		slog.Error("failed to mark as failed", "item_id", item.ID, "error", err)
		return
	}
	summary.Failed++
	recordItemProcessed(item.WorkType, "failed")
}
