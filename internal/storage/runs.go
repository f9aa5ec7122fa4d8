package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/policybook/internal/model"
	"github.com/google/uuid"
)

const (
	kindNotified = "notified"
	kindPurged   = "purged"
	kindFailed   = "failed"
)

// RecordRun stores a run and the clients it touched. A run without an ID
// is assigned a new UUID.
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *model.Run) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var finished sql.NullTime
	if !run.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, trigger, status, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger, string(run.Status), run.StartedAt.UTC(), finished, run.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_clients (run_id, kind, email, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for kind, emails := range map[string][]string{
		kindNotified: run.Notified,
		kindPurged:   run.Purged,
		kindFailed:   run.Failures,
	} {
		for i, email := range emails {
			if _, err := stmt.ExecContext(ctx, run.ID, kind, email, i); err != nil {
				return fmt.Errorf("failed to insert %s client %s: %w", kind, email, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the latest runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger, status, started_at, finished_at, COALESCE(error, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var status string
		var started time.Time
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Trigger, &status, &started, &finished, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = model.RunStatus(status)
		run.StartedAt = started
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range runs {
		if err := s.loadRunClients(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *SQLiteStorage) loadRunClients(ctx context.Context, run *model.Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, email FROM run_clients
		WHERE run_id = ?
		ORDER BY kind, position`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query clients of run %s: %w", run.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind, email string
		if err := rows.Scan(&kind, &email); err != nil {
			return fmt.Errorf("failed to scan run client: %w", err)
		}
		switch kind {
		case kindNotified:
			run.Notified = append(run.Notified, email)
		case kindPurged:
			run.Purged = append(run.Purged, email)
		case kindFailed:
			run.Failures = append(run.Failures, email)
		}
	}
	return rows.Err()
}
