package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(repo Repository) *Service {
	config := DefaultDispatcherConfig()
	return NewService(repo, NewDispatcher(config, repo), config)
}

func TestService_Enqueue_AppliesDefaultMaxAttempts(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	item, deduped, err := service.Enqueue(context.Background(), EnqueueInput{
		WorkType: "email",
		Payload:  json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.False(t, deduped)
	assert.Equal(t, 3, item.MaxAttempts)
	assert.Equal(t, StatusPending, item.Status)
	assert.NotEmpty(t, item.ID)
}

func TestService_Enqueue_ExplicitMaxAttempts(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	item, _, err := service.Enqueue(context.Background(), EnqueueInput{
		WorkType:    "email",
		Payload:     json.RawMessage(`{}`),
		MaxAttempts: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, item.MaxAttempts)
}

func TestService_Enqueue_Deduplicates(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	first, deduped, err := service.Enqueue(context.Background(), EnqueueInput{
		WorkType:       "email",
		Payload:        json.RawMessage(`{"n": 1}`),
		IdempotencyKey: "order-42",
	})
	require.NoError(t, err)
	assert.False(t, deduped)

	second, deduped, err := service.Enqueue(context.Background(), EnqueueInput{
		WorkType:       "email",
		Payload:        json.RawMessage(`{"n": 2}`),
		IdempotencyKey: "order-42",
	})
	require.NoError(t, err)
	assert.True(t, deduped)
	assert.Equal(t, first.ID, second.ID)

	// Different work type, same key: no dedup
	_, deduped, err = service.Enqueue(context.Background(), EnqueueInput{
		WorkType:       "webhook",
		Payload:        json.RawMessage(`{}`),
		IdempotencyKey: "order-42",
	})
	require.NoError(t, err)
	assert.False(t, deduped)
}

func TestService_Requeue(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	item, _, err := service.Enqueue(context.Background(), EnqueueInput{
		WorkType: "email",
		Payload:  json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	// Pending items cannot be requeued
	_, err = service.Requeue(context.Background(), item.ID)
	assert.ErrorIs(t, err, ErrNotFailed)

	repo.items[item.ID].Status = StatusFailed
	repo.items[item.ID].Attempts = 3

	requeued, err := service.Requeue(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, requeued.Status)
	assert.Equal(t, 0, requeued.Attempts)
}

func TestService_Requeue_NotFound(t *testing.T) {
	service := newTestService(newMockRepository())

	_, err := service.Requeue(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestService_GetStats(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	for i := 0; i < 3; i++ {
		_, _, err := service.Enqueue(context.Background(), EnqueueInput{
			WorkType: "email",
			Payload:  json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	stats, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Pending)
	assert.Equal(t, int64(0), stats.Failed)
}
