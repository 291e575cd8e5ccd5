// Package observability persists monitoring data to SQLite so a
// single-binary deployment needs no scraper, agent or sidecar: metric
// datapoints and worker heartbeats land in one observability database,
// kept separate from the catalog database to avoid write contention.
//
// Apply the schema with Init on the shared *sql.DB, then hand that DB to
// the constructors. Writes are batched and best effort; a failed batch is
// logged and dropped rather than slowing the pipeline down.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/affiche/dbopen"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string // e.g. MetricRunDurationMs, MetricEventsInserted
	Timestamp time.Time
	Value     float64
	Labels    map[string]string // optional key/value pairs
	Unit      string            // "percent", "bytes", "milliseconds", "count"
}

// MetricsManager buffers datapoints in memory and lands them in
// metrics_timeseries in batches, either when the buffer fills or on the
// flush ticker.
type MetricsManager struct {
	db        *sql.DB
	batchSize int
	every     time.Duration

	mu      sync.Mutex
	pending []*Metric

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewMetricsManager starts the flush goroutine. Reasonable defaults:
// bufferSize=100, flushInterval=5s.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *MetricsManager {
	mm := &MetricsManager{
		db:        db,
		batchSize: bufferSize,
		every:     flushInterval,
		pending:   make([]*Metric, 0, bufferSize),
		quit:      make(chan struct{}),
	}
	mm.wg.Add(1)
	go mm.run()
	return mm
}

// Record queues a datapoint. It only blocks if the queue just filled, in
// which case the caller pays for one batch write.
func (mm *MetricsManager) Record(m *Metric) {
	mm.mu.Lock()
	mm.pending = append(mm.pending, m)
	var batch []*Metric
	if len(mm.pending) >= mm.batchSize {
		batch = mm.takeLocked()
	}
	mm.mu.Unlock()
	mm.flush(batch)
}

// RecordSimple queues an unlabelled datapoint stamped with the current time.
func (mm *MetricsManager) RecordSimple(name string, value float64, unit string) {
	mm.Record(&Metric{Name: name, Timestamp: time.Now(), Value: value, Unit: unit})
}

// Query returns datapoints newest first. Empty name matches every metric,
// nil bounds are unbounded, limit <= 0 means no limit.
func (mm *MetricsManager) Query(name string, since, until *time.Time, limit int) ([]*Metric, error) {
	var conds []string
	var args []any
	if name != "" {
		conds = append(conds, "metric_name = ?")
		args = append(args, name)
	}
	if since != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, since.Unix())
	}
	if until != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, until.Unix())
	}

	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMetric(rows *sql.Rows) (*Metric, error) {
	var (
		m      Metric
		ts     int64
		labels sql.NullString
	)
	if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &m.Unit); err != nil {
		return nil, fmt.Errorf("scan metric: %w", err)
	}
	m.Timestamp = time.Unix(ts, 0)
	if labels.Valid {
		var decoded map[string]string
		if json.Unmarshal([]byte(labels.String), &decoded) == nil {
			m.Labels = decoded
		}
	}
	return &m, nil
}

// Cleanup deletes datapoints older than retentionDays and reports how many
// went.
func (mm *MetricsManager) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := mm.db.ExecContext(ctx, "DELETE FROM metrics_timeseries WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes whatever is buffered and stops the flush goroutine.
func (mm *MetricsManager) Close() error {
	close(mm.quit)
	mm.wg.Wait()
	return nil
}

func (mm *MetricsManager) run() {
	defer mm.wg.Done()
	tick := time.NewTicker(mm.every)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			mm.flush(mm.take())
		case <-mm.quit:
			mm.flush(mm.take())
			return
		}
	}
}

// take swaps the pending buffer for a fresh one and returns the old batch.
func (mm *MetricsManager) take() []*Metric {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.takeLocked()
}

func (mm *MetricsManager) takeLocked() []*Metric {
	if len(mm.pending) == 0 {
		return nil
	}
	batch := mm.pending
	mm.pending = make([]*Metric, 0, mm.batchSize)
	return batch
}

// flush lands one batch in a single transaction, retried on BUSY since the
// observability database is shared with the heartbeat writer. A batch that
// still fails is dropped; metrics are best effort.
func (mm *MetricsManager) flush(batch []*Metric) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, mm.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range batch {
			if _, err := stmt.ExecContext(ctx,
				m.Name, m.Timestamp.Unix(), m.Value, encodeLabels(m.Labels), m.Unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("metrics flush failed", "batch", len(batch), "error", err)
	}
}

func encodeLabels(labels map[string]string) sql.NullString {
	if len(labels) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// Metric names written by the pipeline runner.
const (
	MetricRunDurationMs   = "pipeline_run_duration_ms"
	MetricRecordsFetched  = "pipeline_records_fetched"
	MetricRecordsMissing  = "pipeline_records_missing"
	MetricRecordsSkipped  = "pipeline_records_skipped"
	MetricEventsInserted  = "pipeline_events_inserted"
	MetricEventsDuplicate = "pipeline_events_duplicate"
)
