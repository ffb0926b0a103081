package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ProgressFunc reports generation progress in percent. Implementations
// clamp and persist the value; calls are best-effort and must not abort
// the generator on error.
type ProgressFunc func(percent int)

// Generator performs the job-type-specific generation work. Implementations
// wrap external providers (image/video generation APIs) and are registered
// with the runner; the spec stays opaque to the engine.
type Generator interface {
	// JobType returns the job type this generator handles.
	JobType() string

	// Generate runs the provider call and returns the result payload.
	// It may call report as work advances.
	Generate(ctx context.Context, spec json.RawMessage, report ProgressFunc) (json.RawMessage, error)
}

// RunnerConfig contains job runner configuration.
type RunnerConfig struct {
	BatchSize    int
	ClaimTimeout time.Duration
	// DefaultMaxAttempts is applied to created jobs without an explicit ceiling.
	DefaultMaxAttempts int
}

// DefaultRunnerConfig returns default runner configuration. Generation work
// is heavier than notification delivery, so the batch is smaller.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		BatchSize:          10,
		ClaimTimeout:       15 * time.Minute,
		DefaultMaxAttempts: 3,
	}
}

// RunSummary describes what one runner invocation did.
type RunSummary struct {
	Processed int `json:"processed"`
	Done      int `json:"done"`
	Canceled  int `json:"canceled"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// Runner drives claimed jobs through their generators. Like the queue
// dispatcher it is invoked per trigger and holds no worker loop; the
// generator call itself is uninterruptible and cancellation is applied
// at the commit step.
type Runner struct {
	config     RunnerConfig
	repo       Repository
	generators map[string]Generator
}

// NewRunner creates a runner with the given generators registered.
func NewRunner(config RunnerConfig, repo Repository, generators ...Generator) *Runner {
	genMap := make(map[string]Generator)
	for _, g := range generators {
		genMap[g.JobType()] = g
	}
	return &Runner{
		config:     config,
		repo:       repo,
		generators: genMap,
	}
}

// Register adds a generator, replacing any previous one for the job type.
func (r *Runner) Register(g Generator) {
	r.generators[g.JobType()] = g
}

// Run claims up to limit queued jobs of the given type and runs them
// sequentially. A limit of zero means the configured batch size; an empty
// queue yields a zero summary.
func (r *Runner) Run(ctx context.Context, jobType string, limit int) (RunSummary, error) {
	var summary RunSummary

	if _, ok := r.generators[jobType]; !ok {
		return summary, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	if limit <= 0 {
		limit = r.config.BatchSize
	}

	// Abandoned claims with exhausted attempts can no longer be retried;
	// sweep them to failed so observers see a terminal status instead of a
	// job stuck in processing.
	swept, err := r.repo.FailExpiredClaims(ctx, jobType, r.config.ClaimTimeout)
	if err != nil {
		return summary, fmt.Errorf("fail expired claims: %w", err)
	}
	if swept > 0 {
		slog.Warn("swept expired job claims", "job_type", jobType, "count", swept)
	}

	jobs, err := r.repo.ClaimBatch(ctx, jobType, limit, r.config.ClaimTimeout)
	if err != nil {
		return summary, fmt.Errorf("claim jobs: %w", err)
	}

	if len(jobs) == 0 {
		return summary, nil
	}

	slog.Info("running jobs", "job_type", jobType, "count", len(jobs))

	for _, job := range jobs {
		summary.Processed++
		r.runJob(ctx, job, &summary)
	}

	return summary, nil
}

func (r *Runner) runJob(ctx context.Context, job *Job, summary *RunSummary) {
	start := time.Now()
	result, err := r.safeGenerate(ctx, job)
	duration := time.Since(start)

	if err != nil {
		r.handleFailure(ctx, job, err, summary)
		return
	}

	// The generator finished, but a cancel may have been recorded while it
	// ran. Complete is a compare-and-set: a stored cancel wins and the late
	// result is discarded.
	final, err := r.repo.Complete(ctx, job.ID, job.ClaimToken, result)
	if err != nil {
		slog.Error("failed to complete job", "job_id", job.ID, "error", err)
		return
	}

	switch final {
	case StatusCanceled:
		summary.Canceled++
		recordJobFinished(job.JobType, "canceled")
		slog.Info("job result discarded, cancel was recorded first", "job_id", job.ID)
	default:
		summary.Done++
		recordJobFinished(job.JobType, "done")
		recordJobDuration(job.JobType, duration)
		slog.Debug("job done", "job_id", job.ID, "duration", duration)
	}
}

// safeGenerate invokes the generator, converting a panic into an error.
func (r *Runner) safeGenerate(ctx context.Context, job *Job) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("generator panicked", "job_id", job.ID, "job_type", job.JobType, "panic", rec)
			err = fmt.Errorf("generator panic: %v", rec)
		}
	}()

	report := func(percent int) {
		if progErr := r.repo.UpdateProgress(ctx, job.ID, job.ClaimToken, percent); progErr != nil {
			slog.Debug("progress update dropped", "job_id", job.ID, "error", progErr)
		}
	}

	return r.generators[job.JobType].Generate(ctx, job.Spec, report)
}

func (r *Runner) handleFailure(ctx context.Context, job *Job, cause error, summary *RunSummary) {
	slog.Warn("job failed",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"error", cause,
	)

	final, err := r.repo.Fail(ctx, job.ID, job.ClaimToken, cause)
	if err != nil {
		slog.Error("failed to record job failure", "job_id", job.ID, "error", err)
		return
	}

	switch final {
	case StatusCanceled:
		summary.Canceled++
		recordJobFinished(job.JobType, "canceled")
	case StatusQueued:
		summary.Retried++
		recordJobFinished(job.JobType, "retried")
	default:
		summary.Failed++
		recordJobFinished(job.JobType, "failed")
	}
}
