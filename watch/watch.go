// Package watch provides a generic "poll SQLite, detect change, debounce,
// act" loop. The pipeline uses it to trigger a batch run when collectors
// land new raw records: a MaxColumnDetector over raw_records(id) only
// advances on intake, so the pipeline's own writes never retrigger it.
//
// Typical usage:
//
//	w := watch.New(db, watch.Options{
//		Interval: 5 * time.Second,
//		Debounce: 30 * time.Second,
//		Detector: watch.MaxColumnDetector("raw_records", "id"),
//	})
//	go w.OnChange(ctx, func() error { return svc.RunOnce(ctx) })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token from the database; two reads that
// differ mean something changed. Tokens are int64 because every practical
// source is one: PRAGMA data_version, PRAGMA user_version, MAX(id).
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling cadence. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet window between the first detected change and
	// the action firing; further changes inside the window push it back.
	// Zero fires immediately.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// tally groups the loop counters behind Stats.
type tally struct {
	checks   atomic.Int64
	changes  atomic.Int64
	errors   atomic.Int64
	reloads  atomic.Int64
	reloadNs atomic.Int64
}

func (t *tally) snapshot() Stats {
	s := Stats{
		Checks:          t.checks.Load(),
		ChangesDetected: t.changes.Load(),
		Errors:          t.errors.Load(),
		Reloads:         t.reloads.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(t.reloadNs.Load() / s.Reloads)
	}
	return s
}

// Watcher polls one database and runs an action when its version token
// moves. Safe for concurrent use.
type Watcher struct {
	db   *sql.DB
	opts Options

	// version is the last token whose action completed successfully.
	version atomic.Int64

	// versionCond broadcasts on every advance so WaitForVersion can park.
	versionMu   sync.Mutex
	versionCond *sync.Cond

	n tally
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64         `json:"checks"`
	ChangesDetected int64         `json:"changes_detected"`
	Errors          int64         `json:"errors"`
	Reloads         int64         `json:"reloads"`
	AvgReloadTime   time.Duration `json:"avg_reload_time"`
}

// New creates a Watcher. Call OnChange to start the loop.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	w := &Watcher{db: db, opts: opts}
	w.versionCond = sync.NewCond(&w.versionMu)
	return w
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats { return w.n.snapshot() }

// Version returns the last successfully processed version token.
func (w *Watcher) Version() int64 { return w.version.Load() }

// delay is a re-armable one-shot timer. Its channel is nil while idle,
// which disables the corresponding select case.
type delay struct {
	timer *time.Timer
	c     <-chan time.Time
}

func (d *delay) arm(after time.Duration) {
	d.cancel()
	d.timer = time.NewTimer(after)
	d.c = d.timer.C
}

func (d *delay) cancel() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.c = nil
}

// OnChange polls at the configured interval until ctx is cancelled,
// calling action once per settled change. A failing action does not
// advance the version, so the same change is retried on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial version read failed", "error", err)
	} else {
		w.setVersion(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	// pending holds a detected-but-unfired token; -1 means none.
	pending := int64(-1)
	var window delay
	defer window.cancel()

	log.Info("watch: started", "interval", w.opts.Interval, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped")
			return

		case <-ticker.C:
			w.n.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.n.errors.Add(1)
				log.Warn("watch: version read failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.n.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.runAction(log, action, pending)
				pending = -1
				continue
			}
			// A burst of intake keeps pushing the window back; the action
			// fires once the writers go quiet.
			window.arm(w.opts.Debounce)
			log.Debug("watch: change detected, debouncing", "pending_version", cur)

		case <-window.c:
			window.c = nil
			if pending >= 0 {
				w.runAction(log, action, pending)
				pending = -1
			}
		}
	}
}

// WaitForVersion blocks until a version >= target has been observed and
// successfully processed, or ctx expires.
func (w *Watcher) WaitForVersion(ctx context.Context, target int64) error {
	if w.version.Load() >= target {
		return nil
	}

	// Wake the cond wait on cancellation; taking the lock first guarantees
	// the broadcast cannot slip between the error check and the park.
	stop := context.AfterFunc(ctx, func() {
		w.versionMu.Lock()
		defer w.versionMu.Unlock()
		w.versionCond.Broadcast()
	})
	defer stop()

	w.versionMu.Lock()
	defer w.versionMu.Unlock()
	for w.version.Load() < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.versionCond.Wait()
	}
	return nil
}

func (w *Watcher) runAction(log *slog.Logger, action func() error, ver int64) {
	log.Info("watch: firing", "old_version", w.version.Load(), "new_version", ver)
	start := time.Now()
	if err := action(); err != nil {
		w.n.errors.Add(1)
		log.Error("watch: action failed", "error", err, "version", ver)
		return
	}
	elapsed := time.Since(start)
	w.n.reloads.Add(1)
	w.n.reloadNs.Add(int64(elapsed))
	w.setVersion(ver)
	log.Info("watch: action complete", "version", ver, "duration", elapsed)
}

func (w *Watcher) setVersion(v int64) {
	w.version.Store(v)
	w.versionCond.Broadcast()
}

// queryInt wraps a single-row integer query as a detector.
func queryInt(query string) ChangeDetector {
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

// PragmaDataVersion reads PRAGMA data_version, which moves whenever a
// different connection writes the database file. Detects cross-process
// mutations without any schema cooperation.
var PragmaDataVersion = queryInt("PRAGMA data_version")

// PragmaUserVersion reads PRAGMA user_version, an application-owned
// integer the writer bumps explicitly. Deterministic token values make it
// the detector of choice for WaitForVersion.
var PragmaUserVersion = queryInt("PRAGMA user_version")

// MaxColumnDetector polls COALESCE(MAX(column), 0) on a table. Suits
// append-only intake tables whose rowid-ish columns only ever grow.
func MaxColumnDetector(table, column string) ChangeDetector {
	return queryInt("SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table))
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
