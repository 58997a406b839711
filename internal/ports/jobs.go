package ports

import "context"

type ClassifyJob struct {
	ID          string
	IndicatorID string
}

// JobRepository supports enqueuing and claiming classification jobs.
type JobRepository interface {
	Enqueue(ctx context.Context, indicatorID string) (jobID string, err error)
	ClaimNext(ctx context.Context) (job ClassifyJob, found bool, err error)
	// ClaimJob marks a specific queued job running; found is false when another
	// worker already holds it.
	ClaimJob(ctx context.Context, jobID string) (job ClassifyJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}
