package classifyrunner

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"threatlens/internal/observability"
	"threatlens/internal/ports"
)

// ErrJobTaken is returned by ProcessInline when the job is no longer queued.
var ErrJobTaken = errors.New("job already claimed")

const shutdownReason = "shutdown before processing"

// Processor performs the classification work for a job's indicator.
type Processor interface {
	Process(ctx context.Context, indicatorID string) error
}

type Options struct {
	Concurrency  int
	PollInterval time.Duration
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Run starts worker goroutines that claim queued jobs and process them. It
// blocks until ctx is done and every worker has returned.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, opts Options) {
	if opts.Concurrency < 1 {
		return
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	jobsCh := make(chan ports.ClassifyJob, opts.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			wlog := logger.With(zap.Int("worker", idx))
			for job := range jobsCh {
				if err := handle(ctx, repo, processor, opts.Metrics, job); err != nil {
					wlog.Warn("job failed", zap.String("job_id", job.ID), zap.String("indicator_id", job.IndicatorID), zap.Error(err))
					continue
				}
				wlog.Debug("job completed", zap.String("job_id", job.ID))
			}
		}(i)
	}

	logger.Info("classify workers started", zap.Int("workers", opts.Concurrency), zap.Duration("poll_interval", opts.PollInterval))
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobsCh)
			wg.Wait()
			logger.Info("classify workers stopped")
			return
		case <-ticker.C:
			dispatch(ctx, repo, jobsCh, logger)
		}
	}
}

// dispatch claims jobs until the queue is empty.
func dispatch(ctx context.Context, repo ports.JobRepository, jobsCh chan<- ports.ClassifyJob, logger *zap.Logger) {
	for {
		job, found, err := repo.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("job claim error", zap.Error(err))
			}
			return
		}
		if !found {
			return
		}
		select {
		case jobsCh <- job:
		case <-ctx.Done():
			_ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, shutdownReason)
			return
		}
	}
}

func handle(ctx context.Context, repo ports.JobRepository, processor Processor, metrics *observability.Metrics, job ports.ClassifyJob) error {
	// Status writes must land even when ctx was canceled mid-job.
	statusCtx := context.WithoutCancel(ctx)
	// Jobs still buffered at shutdown are failed without running against a
	// canceled context.
	if err := ctx.Err(); err != nil {
		metrics.ObserveJob("failed")
		if mErr := repo.MarkFailed(statusCtx, job.ID, shutdownReason); mErr != nil {
			return errors.Join(err, mErr)
		}
		return err
	}
	if err := processor.Process(ctx, job.IndicatorID); err != nil {
		metrics.ObserveJob("failed")
		if mErr := repo.MarkFailed(statusCtx, job.ID, err.Error()); mErr != nil {
			return errors.Join(err, mErr)
		}
		return err
	}
	metrics.ObserveJob("completed")
	return repo.MarkCompleted(statusCtx, job.ID)
}

// ProcessInline claims a specific queued job and processes it synchronously
// with the same bookkeeping as the background workers.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor Processor, metrics *observability.Metrics, jobID string) error {
	job, found, err := repo.ClaimJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !found {
		return ErrJobTaken
	}
	return handle(ctx, repo, processor, metrics, job)
}
