package observability

import "database/sql"

// Schema is the DDL for the observability database: heartbeat rows,
// metric datapoints, and the table registry. Apply it with Init, or fold
// the constant into an outer schema manager.
const Schema = `
-- Liveness beats, one row per write. Readers take the newest row per
-- worker and judge staleness against the write interval.
CREATE TABLE IF NOT EXISTS worker_heartbeats (
  heartbeat_id     TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
  timestamp        INTEGER NOT NULL,
  worker_name      TEXT NOT NULL,
  hostname         TEXT NOT NULL,
  worker_pid       INTEGER NOT NULL,
  goroutines_count INTEGER,
  memory_alloc_mb  REAL,
  memory_sys_mb    REAL,
  gc_count         INTEGER,
  created_at       INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time ON worker_heartbeats(worker_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_heartbeats_timestamp   ON worker_heartbeats(timestamp DESC);

-- Timeseries datapoints flushed in batches by MetricsManager.
CREATE TABLE IF NOT EXISTS metrics_timeseries (
  metric_id   TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
  metric_name TEXT NOT NULL,
  timestamp   INTEGER NOT NULL,
  value       REAL NOT NULL,
  labels      TEXT,
  unit        TEXT,
  created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time ON metrics_timeseries(metric_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics_timeseries(timestamp DESC);

-- Registry of the tables above, for external inspection tooling.
CREATE TABLE IF NOT EXISTS _observability_metadata (
  table_name  TEXT PRIMARY KEY,
  description TEXT,
  created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
INSERT OR IGNORE INTO _observability_metadata (table_name, description) VALUES
  ('worker_heartbeats',  'liveness beats with runtime stats'),
  ('metrics_timeseries', 'pipeline metric datapoints');
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
