// Package vtq is a visibility-timeout job queue on a single SQLite table.
//
// A published row stays visible until a consumer claims it; the claim
// hides the row for the configured window and bumps its attempt counter.
// The holder then Acks to delete, Nacks to surface the row again, or
// Extends to keep a long job hidden past the window. A crashed holder
// needs no cleanup: its claim simply expires and the row reappears.
//
// The pipeline runs the queue in single-row lease mode. EnsureJob seeds
// one permanent row at startup, and claiming that row is the lease that
// keeps at most one batch run in flight, even across processes sharing
// the database file. In that mode Ack never fires; the runner Nacks the
// row when the batch finishes so the next trigger can claim it again.
//
// Timestamps are stored as milliseconds since the epoch.
package vtq

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Job is one row of the queue table.
type Job struct {
	ID        string
	Queue     string
	Payload   []byte
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// Options configures a queue handle.
type Options struct {
	// Queue names the logical queue. Handles with different names share
	// the table without seeing each other's rows. Default "".
	Queue string
	// Visibility is how long a claimed job stays hidden. Default: 30s.
	Visibility time.Duration
}

// Q is a handle on one logical queue.
type Q struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureTable once at startup, then
// Publish and Claim freely from any number of goroutines.
func New(db *sql.DB, opts Options) *Q {
	if opts.Visibility <= 0 {
		opts.Visibility = 30 * time.Second
	}
	return &Q{db: db, opts: opts}
}

func (q *Q) exec(ctx context.Context, query string, args ...any) error {
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}

// EnsureTable creates the backing table and its claim index.
func (q *Q) EnsureTable(ctx context.Context) error {
	return q.exec(ctx, `
CREATE TABLE IF NOT EXISTS vtq_jobs (
  id         TEXT PRIMARY KEY,
  queue      TEXT NOT NULL DEFAULT '',
  payload    BLOB,
  visible_at INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  attempts   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_vtq_visible ON vtq_jobs (queue, visible_at)`)
}

// Publish inserts an immediately visible job.
func (q *Q) Publish(ctx context.Context, id string, payload []byte) error {
	now := time.Now().UnixMilli()
	return q.exec(ctx,
		`INSERT INTO vtq_jobs (id, queue, payload, visible_at, created_at) VALUES (?,?,?,?,?)`,
		id, q.opts.Queue, payload, now, now)
}

// EnsureJob publishes id unless a row with that id already exists. Seeds
// the permanent lease row at startup without failing on restarts.
func (q *Q) EnsureJob(ctx context.Context, id string, payload []byte) error {
	now := time.Now().UnixMilli()
	return q.exec(ctx,
		`INSERT INTO vtq_jobs (id, queue, payload, visible_at, created_at) VALUES (?,?,?,?,?)
		   ON CONFLICT(id) DO NOTHING`,
		id, q.opts.Queue, payload, now, now)
}

// Claim takes the oldest visible job, hides it for the visibility window
// and returns it with the attempt counter already bumped. An empty queue
// returns nil, nil.
func (q *Q) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	row := q.db.QueryRowContext(ctx, `
UPDATE vtq_jobs SET visible_at = ?, attempts = attempts + 1
WHERE id = (SELECT id FROM vtq_jobs WHERE queue = ? AND visible_at <= ?
            ORDER BY visible_at ASC LIMIT 1)
RETURNING id, queue, payload, visible_at, created_at, attempts`,
		now.Add(q.opts.Visibility).UnixMilli(), q.opts.Queue, now.UnixMilli())
	return scanJob(row)
}

func scanJob(row *sql.Row) (*Job, error) {
	var (
		j            Job
		visAt, creAt int64
	)
	switch err := row.Scan(&j.ID, &j.Queue, &j.Payload, &visAt, &creAt, &j.Attempts); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	j.VisibleAt = time.UnixMilli(visAt)
	j.CreatedAt = time.UnixMilli(creAt)
	return &j, nil
}

// Ack deletes a finished job.
func (q *Q) Ack(ctx context.Context, id string) error {
	return q.exec(ctx, `DELETE FROM vtq_jobs WHERE id = ? AND queue = ?`, id, q.opts.Queue)
}

// Nack makes a job immediately visible again. For a lease row this is
// the release operation.
func (q *Q) Nack(ctx context.Context, id string) error {
	return q.exec(ctx, `UPDATE vtq_jobs SET visible_at = 0 WHERE id = ? AND queue = ?`, id, q.opts.Queue)
}

// Extend pushes the visibility deadline of a claimed job further out, a
// heartbeat for work that outlives the normal window.
func (q *Q) Extend(ctx context.Context, id string, extra time.Duration) error {
	return q.exec(ctx, `UPDATE vtq_jobs SET visible_at = ? WHERE id = ? AND queue = ?`,
		time.Now().Add(extra).UnixMilli(), id, q.opts.Queue)
}

// Purge deletes every job in the queue.
func (q *Q) Purge(ctx context.Context) error {
	return q.exec(ctx, `DELETE FROM vtq_jobs WHERE queue = ?`, q.opts.Queue)
}

// Len counts all jobs in the queue, visible or not.
func (q *Q) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vtq_jobs WHERE queue = ?`, q.opts.Queue).Scan(&n)
	return n, err
}
