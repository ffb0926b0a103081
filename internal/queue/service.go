package queue

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Service provides queue business logic between the HTTP layer and the
// repository: enqueue defaults, operator listing, manual requeue.
type Service struct {
	repo       Repository
	dispatcher *Dispatcher
	defaults   DispatcherConfig
}

// NewService creates a new queue service.
func NewService(repo Repository, dispatcher *Dispatcher, defaults DispatcherConfig) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		defaults:   defaults,
	}
}

// EnqueueInput contains data for enqueueing one work item.
type EnqueueInput struct {
	WorkType       string
	Payload        json.RawMessage
	MaxAttempts    int    // 0 means the configured default
	IdempotencyKey string // optional, producer-supplied
}

// Enqueue inserts a new pending item. When an idempotency key is supplied
// and an item with that key already exists for the work type, the existing
// item is returned and deduped is true.
func (s *Service) Enqueue(ctx context.Context, input EnqueueInput) (item *Item, deduped bool, err error) {
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaults.DefaultMaxAttempts
	}

	item = &Item{
		WorkType:       input.WorkType,
		Payload:        input.Payload,
		IdempotencyKey: input.IdempotencyKey,
		Status:         StatusPending,
		MaxAttempts:    maxAttempts,
	}

	deduped, err = s.repo.Enqueue(ctx, item)
	if err != nil {
		return nil, false, err
	}

	if deduped {
		slog.Debug("enqueue deduplicated",
			"work_type", input.WorkType,
			"idempotency_key", input.IdempotencyKey,
			"item_id", item.ID,
		)
	}

	return item, deduped, nil
}

// GetItem returns one item by ID.
func (s *Service) GetItem(ctx context.Context, id string) (*Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns items matching the filter for operator inspection.
func (s *Service) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	return s.repo.ListItems(ctx, filter)
}

// Requeue resets a failed item to pending so it becomes claimable again.
// This is the operator recovery path after a permanent failure.
func (s *Service) Requeue(ctx context.Context, id string) (*Item, error) {
	if err := s.repo.Requeue(ctx, id); err != nil {
		return nil, err
	}
	slog.Info("queue item requeued", "item_id", id)
	return s.repo.GetItem(ctx, id)
}

// Dispatch triggers one dispatcher run for the work type.
func (s *Service) Dispatch(ctx context.Context, workType string, limit int) (Summary, error) {
	return s.dispatcher.Run(ctx, workType, limit)
}

// GetStats returns queue size counters by status.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	return s.repo.GetStats(ctx)
}
