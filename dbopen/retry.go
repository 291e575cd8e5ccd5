package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLite in WAL mode still serialises writers; a second writer sees
// SQLITE_BUSY once busy_timeout expires. Three attempts with a short
// growing pause clears transient contention without hiding a real
// deadlock.
const maxAttempts = 3

func backoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 100 * time.Millisecond
}

var busyMarkers = []string{
	"SQLITE_BUSY",
	"database is locked",
	"database table is locked",
}

// IsBusy reports whether err is an SQLite BUSY condition. The pure Go
// driver surfaces these as formatted strings, so this is a substring
// check rather than an errors.Is.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// retryBusy runs op up to maxAttempts times, pausing between BUSY
// failures. Any other error stops the loop immediately.
func retryBusy(ctx context.Context, op func() error) error {
	var err error
	for i := range maxAttempts {
		if err = op(); err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		if i < maxAttempts-1 {
			if werr := sleepCtx(ctx, backoff(i)); werr != nil {
				return fmt.Errorf("dbopen: cancelled during busy retry: %w", werr)
			}
		}
	}
	return err
}

// RunTx runs fn inside a transaction, committing on nil and rolling back
// on error. BUSY conflicts restart the whole transaction, so fn must be
// safe to re-run from scratch.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return retryBusy(ctx, func() error { return attemptTx(ctx, db, fn) })
}

func attemptTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec runs a single statement with the same BUSY retry policy as RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryBusy(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
