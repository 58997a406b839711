package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"threatlens/internal/ports"
)

func (s *Store) Enqueue(ctx context.Context, indicatorID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classify_jobs (id, indicator_id, queued_at) VALUES (?, ?, ?)
	`, id, indicatorID, s.now().UnixNano())
	if err != nil {
		return "", err
	}
	return id, nil
}

// ClaimNext transitions the oldest queued job to running in one statement.
func (s *Store) ClaimNext(ctx context.Context) (ports.ClassifyJob, bool, error) {
	return s.claim(ctx, `
		UPDATE classify_jobs
		SET status = 'running', started_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM classify_jobs WHERE status = 'queued' ORDER BY queued_at, rowid LIMIT 1
		)
		RETURNING id, indicator_id
	`, s.now().UnixNano())
}

func (s *Store) ClaimJob(ctx context.Context, jobID string) (ports.ClassifyJob, bool, error) {
	return s.claim(ctx, `
		UPDATE classify_jobs
		SET status = 'running', started_at = ?, attempts = attempts + 1
		WHERE id = ? AND status = 'queued'
		RETURNING id, indicator_id
	`, s.now().UnixNano(), jobID)
}

func (s *Store) claim(ctx context.Context, query string, args ...any) (ports.ClassifyJob, bool, error) {
	var job ports.ClassifyJob
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&job.ID, &job.IndicatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE classify_jobs SET status = 'completed', last_error = NULL, finished_at = ? WHERE id = ?
	`, s.now().UnixNano(), jobID)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE classify_jobs SET status = 'failed', last_error = ?, finished_at = ? WHERE id = ?
	`, reason, s.now().UnixNano(), jobID)
	return err
}

