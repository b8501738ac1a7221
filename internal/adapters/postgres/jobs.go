package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"orgwatch/internal/ports"
)

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ScanJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil || !found {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		SELECT id::text, scan_id::text FROM scan_jobs
		WHERE status = 'queued'
		ORDER BY queued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&job.ID, &job.ScanID)
	if errors.Is(err, pgx.ErrNoRows) {
		return job, false, nil
	}
	if err != nil {
		return job, false, fmt.Errorf("claim job: %w", err)
	}

	if err = markRunning(ctx, tx, job.ID, job.ScanID); err != nil {
		return job, false, err
	}
	return job, true, nil
}

func markRunning(ctx context.Context, tx pgx.Tx, jobID, scanID string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE scan_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
	`, jobID); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE scans SET status='running', started_at=COALESCE(started_at, now()) WHERE id=$1
	`, scanID); err != nil {
		return fmt.Errorf("mark scan running: %w", err)
	}
	return nil
}

func (db *DB) UpdateScanProgress(ctx context.Context, scanID string, progress float64) error {
	progress = min(max(progress, 0), 1)
	_, err := db.Pool.Exec(ctx, `UPDATE scans SET progress=$2 WHERE id=$1`, scanID, progress)
	return err
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	return db.finish(ctx, jobID, "completed", "")
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return db.finish(ctx, jobID, "failed", reason)
}

// finish moves a job and its scan to a terminal status atomically.
func (db *DB) finish(ctx context.Context, jobID, status, reason string) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var scanID string
	if err = tx.QueryRow(ctx, `SELECT scan_id::text FROM scan_jobs WHERE id=$1`, jobID).Scan(&scanID); err != nil {
		return fmt.Errorf("select job %s: %w", jobID, err)
	}
	if _, err = tx.Exec(ctx, `UPDATE scan_jobs SET status=$2, last_error=$3, finished_at=now() WHERE id=$1`, jobID, status, reason); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	progress := "progress"
	if status == "completed" {
		progress = "1"
	}
	if _, err = tx.Exec(ctx, `UPDATE scans SET status=$2, progress=`+progress+`, finished_at=now() WHERE id=$1`, scanID, status); err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	return nil
}

// StartJobForScan marks the job for a specific scan as running and returns the job id.
func (db *DB) StartJobForScan(ctx context.Context, scanID string) (jobID string, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		SELECT id::text FROM scan_jobs
		WHERE scan_id = $1 AND status = 'queued'
		FOR UPDATE SKIP LOCKED
	`, scanID).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("no queued job for scan %s: %w", scanID, ports.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("select job: %w", err)
	}
	if err = markRunning(ctx, tx, jobID, scanID); err != nil {
		return "", err
	}
	return jobID, nil
}
