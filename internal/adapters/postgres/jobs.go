package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"threatlens/internal/ports"
)

func (db *DB) Enqueue(ctx context.Context, indicatorID string) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO classify_jobs (indicator_id) VALUES ($1) RETURNING id
	`, indicatorID).Scan(&id)
	return id, err
}

// ClaimNext selects the oldest queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ClassifyJob, found bool, err error) {
	return db.claim(ctx, `
		SELECT id, indicator_id FROM classify_jobs
		WHERE status = 'queued'
		ORDER BY queued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`)
}

func (db *DB) ClaimJob(ctx context.Context, jobID string) (ports.ClassifyJob, bool, error) {
	return db.claim(ctx, `
		SELECT id, indicator_id FROM classify_jobs
		WHERE id = $1 AND status = 'queued'
		FOR UPDATE SKIP LOCKED
	`, jobID)
}

func (db *DB) claim(ctx context.Context, query string, args ...any) (job ports.ClassifyJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, query, args...).Scan(&job.ID, &job.IndicatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE classify_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
	`, job.ID); err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
		UPDATE classify_jobs SET status='completed', last_error=NULL, finished_at=now() WHERE id=$1
	`, jobID)
	return err
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
		UPDATE classify_jobs SET status='failed', last_error=$2, finished_at=now() WHERE id=$1
	`, jobID, reason)
	return err
}
