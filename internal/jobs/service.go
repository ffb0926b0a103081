package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Service provides job business logic: creation, the status projection read
// by pollers and cooperative cancellation.
type Service struct {
	repo     Repository
	runner   *Runner
	defaults RunnerConfig
}

// NewService creates a new jobs service.
func NewService(repo Repository, runner *Runner, defaults RunnerConfig) *Service {
	return &Service{
		repo:     repo,
		runner:   runner,
		defaults: defaults,
	}
}

// CreateInput contains data for creating one job.
type CreateInput struct {
	JobType     string
	Spec        json.RawMessage
	MaxAttempts int // 0 means the configured default
}

// Create inserts a new queued job.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Job, error) {
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaults.DefaultMaxAttempts
	}

	job := &Job{
		JobType:     input.JobType,
		Spec:        input.Spec,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	slog.Info("job created", "job_id", job.ID, "job_type", job.JobType)
	return job, nil
}

// Get returns one job by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// List returns jobs of the given type for operator inspection.
func (s *Service) List(ctx context.Context, jobType string, limit int) ([]Job, error) {
	return s.repo.List(ctx, jobType, limit)
}

// JobStatus returns the observable projection of a job's latest durable
// state. This is the read pollers hit.
func (s *Service) JobStatus(ctx context.Context, id string) (StatusView, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return job.View(), nil
}

// Cancel requests cooperative cancellation. A non-terminal job flips to
// canceled; a terminal one yields ErrJobAlreadyTerminal. An in-flight
// generator call is not interrupted, but its late result will be discarded.
func (s *Service) Cancel(ctx context.Context, id string) (Status, error) {
	status, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return "", err
	}
	slog.Info("job canceled", "job_id", id)
	return status, nil
}

// Dispatch triggers one runner invocation for the job type.
func (s *Service) Dispatch(ctx context.Context, jobType string, limit int) (RunSummary, error) {
	return s.runner.Run(ctx, jobType, limit)
}
