package store

import "database/sql"

// Schema is the complete catalog schema. raw_records is the intake side:
// collectors append, the pipeline reads and retires. events is the load
// side: insert-once keyed on url, never updated, full-text indexed.
const Schema = `
-- Raw intake: one row per collected record, deleted on successful promotion
CREATE TABLE IF NOT EXISTS raw_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    source_tag  TEXT NOT NULL,
    payload     TEXT NOT NULL,
    received_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_records_source ON raw_records(source_tag);

-- Canonical catalog records
CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    url           TEXT NOT NULL,
    event_date    TEXT,
    venue_name    TEXT NOT NULL DEFAULT '',
    venue_address TEXT NOT NULL DEFAULT '',
    venue_city    TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    source        TEXT NOT NULL DEFAULT '',
    category      TEXT NOT NULL DEFAULT '',
    genre         TEXT NOT NULL DEFAULT '',
    latitude      REAL,
    longitude     REAL,
    search_text   TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(created_at DESC);

-- FTS5 on events (name + venue + address + description)
CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
    name, venue_name, venue_address, description, content='events', content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
);

-- Triggers to keep FTS5 in sync
CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
    INSERT INTO events_fts(rowid, name, venue_name, venue_address, description)
    VALUES (new.rowid, new.name, new.venue_name, new.venue_address, new.description);
END;
CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
    INSERT INTO events_fts(events_fts, rowid, name, venue_name, venue_address, description)
    VALUES('delete', old.rowid, old.name, old.venue_name, old.venue_address, old.description);
END;
CREATE TRIGGER IF NOT EXISTS events_au AFTER UPDATE ON events BEGIN
    INSERT INTO events_fts(events_fts, rowid, name, venue_name, venue_address, description)
    VALUES('delete', old.rowid, old.name, old.venue_name, old.venue_address, old.description);
    INSERT INTO events_fts(rowid, name, venue_name, venue_address, description)
    VALUES (new.rowid, new.name, new.venue_name, new.venue_address, new.description);
END;

-- Batch run bookkeeping
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER,
    status        TEXT NOT NULL DEFAULT 'running',
    fetched       INTEGER NOT NULL DEFAULT 0,
    missing       INTEGER NOT NULL DEFAULT 0,
    skipped       INTEGER NOT NULL DEFAULT 0,
    dropped       INTEGER NOT NULL DEFAULT 0,
    normalized    INTEGER NOT NULL DEFAULT 0,
    inserted      INTEGER NOT NULL DEFAULT 0,
    duplicates    INTEGER NOT NULL DEFAULT 0,
    insert_failed INTEGER NOT NULL DEFAULT 0,
    retired       INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_time ON runs(started_at DESC);
`

// Migration001UniqueURL adds the UNIQUE index on events(url) that dedup
// relies on. Safe to run on existing databases (IF NOT EXISTS).
const Migration001UniqueURL = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_url_unique ON events(url);
`

// Migration002Season adds the season column carried by some ticketing feeds.
const Migration002Season = `
ALTER TABLE events ADD COLUMN season TEXT NOT NULL DEFAULT '';
`

// ApplySchema creates all tables, indexes and triggers on the given database.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return err
	}
	if _, err := db.Exec(Migration001UniqueURL); err != nil {
		return err
	}
	applyColumnMigration(db, "events", "season", Migration002Season)
	return nil
}

// applyColumnMigration adds a column if it doesn't exist (idempotent).
func applyColumnMigration(db *sql.DB, table, column, ddl string) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil || count > 0 {
		return
	}
	db.Exec(ddl)
}
