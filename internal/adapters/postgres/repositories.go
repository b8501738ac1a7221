package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"orgwatch/internal/domain"
	"orgwatch/internal/ports"
)

// ScanRepository

func (db *DB) Create(ctx context.Context, orgID string) (string, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var scanID string
	err = tx.QueryRow(ctx, `
		INSERT INTO scans (organization_id, status, progress)
		VALUES ($1, 'queued', 0)
		RETURNING id::text
	`, orgID).Scan(&scanID)
	if err != nil {
		return "", fmt.Errorf("insert scan: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO scan_jobs (scan_id) VALUES ($1)`, scanID); err != nil {
		return "", fmt.Errorf("insert scan job: %w", err)
	}
	return scanID, tx.Commit(ctx)
}

func (db *DB) Get(ctx context.Context, scanID string) (domain.Scan, error) {
	var s domain.Scan
	var result []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT id::text, organization_id::text, status, progress, result, started_at, finished_at
		FROM scans WHERE id = $1
	`, scanID).Scan(&s.ID, &s.OrganizationID, &s.Status, &s.Progress, &result, &s.StartedAt, &s.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scan{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Scan{}, fmt.Errorf("select scan: %w", err)
	}
	if len(result) > 0 {
		s.Result = &domain.ScanResult{}
		if err := json.Unmarshal(result, s.Result); err != nil {
			return domain.Scan{}, fmt.Errorf("decode scan result: %w", err)
		}
	}
	return s, nil
}

func (db *DB) SaveResult(ctx context.Context, scanID string, res domain.ScanResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode scan result: %w", err)
	}
	tag, err := db.Pool.Exec(ctx, `UPDATE scans SET result = $2 WHERE id = $1`, scanID, data)
	if err != nil {
		return fmt.Errorf("update scan result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
