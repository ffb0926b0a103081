package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(repo Repository) *Service {
	config := DefaultRunnerConfig()
	return NewService(repo, NewRunner(config, repo), config)
}

func TestService_Create_AppliesDefaultMaxAttempts(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	job, err := service.Create(context.Background(), CreateInput{
		JobType: "image",
		Spec:    json.RawMessage(`{"prompt": "sunset"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.NotEmpty(t, job.ID)
}

func TestService_JobStatus(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	job, err := service.Create(context.Background(), CreateInput{
		JobType: "image",
		Spec:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	view, err := service.JobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, view.JobID)
	assert.Equal(t, StatusQueued, view.Status)
	assert.Empty(t, view.Result)

	_, err = service.JobStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_JobStatus_HidesSpecAndClaim(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	job, err := service.Create(context.Background(), CreateInput{
		JobType: "image",
		Spec:    json.RawMessage(`{"secret": "prompt"}`),
	})
	require.NoError(t, err)

	view, err := service.JobStatus(context.Background(), job.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.NotContains(t, string(raw), "claim")
}

func TestService_Cancel(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo)

	job, err := service.Create(context.Background(), CreateInput{
		JobType: "image",
		Spec:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	status, err := service.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, status)

	// Canceling again conflicts: the job is already terminal.
	_, err = service.Cancel(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobAlreadyTerminal)
}

func TestService_Cancel_NotFound(t *testing.T) {
	service := newTestService(newMockRepository())

	_, err := service.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCanceled.Terminal())
}
