package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StartRun opens the bookkeeping row for a batch run.
func (s *Store) StartRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{
		ID:        id,
		StartedAt: time.Now().UnixMilli(),
		Status:    RunStatusRunning,
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt, run.Status)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun records the terminal state and counters of a run.
func (s *Store) FinishRun(ctx context.Context, run *Run) error {
	now := time.Now().UnixMilli()
	run.FinishedAt = &now
	_, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET finished_at=?, status=?, fetched=?, missing=?, skipped=?,
		dropped=?, normalized=?, inserted=?, duplicates=?, insert_failed=?, retired=?, error=?
		WHERE id=?`,
		run.FinishedAt, run.Status, run.Fetched, run.Missing, run.Skipped,
		run.Dropped, run.Normalized, run.Inserted, run.Duplicates, run.InsertFailed,
		run.Retired, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, fetched, missing, skipped,
	dropped, normalized, inserted, duplicates, insert_failed, retired, error`

// GetRun retrieves a run by ID, or nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	return scanRun(row)
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Fetched,
			&run.Missing, &run.Skipped, &run.Dropped, &run.Normalized, &run.Inserted,
			&run.Duplicates, &run.InsertFailed, &run.Retired, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	err := row.Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Fetched,
		&run.Missing, &run.Skipped, &run.Dropped, &run.Normalized, &run.Inserted,
		&run.Duplicates, &run.InsertFailed, &run.Retired, &run.Error,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}
