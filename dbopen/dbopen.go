// Package dbopen opens SQLite databases the way every service in this
// repo expects them: foreign keys enforced, WAL journaling, a 10 second
// busy timeout and synchronous=NORMAL, with options to override each.
// Pragmas are applied via Exec so any database/sql driver works; the
// caller blank-imports the driver:
//
//	import _ "modernc.org/sqlite"
//
//	db, err := dbopen.Open("affiche.db")
//
// Tests use OpenMemory, which also handles cleanup.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type config struct {
	driver      string
	synchronous string
	schemas     []string
	busyTimeout int
	cacheSize   int
	foreignKeys bool
	mkdirAll    bool
	ping        bool
}

// pragmas renders the PRAGMA statements in application order.
func (c *config) pragmas() []string {
	onOff := "ON"
	if !c.foreignKeys {
		onOff = "OFF"
	}
	ps := []string{
		"PRAGMA foreign_keys = " + onOff,
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", c.busyTimeout),
		"PRAGMA synchronous = " + c.synchronous,
	}
	if c.cacheSize != 0 {
		ps = append(ps, fmt.Sprintf("PRAGMA cache_size = %d", c.cacheSize))
	}
	return ps
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option {
	return func(c *config) { c.driver = name }
}

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option {
	return func(c *config) { c.busyTimeout = ms }
}

// WithCacheSize sets PRAGMA cache_size. 0 (default) keeps the SQLite
// default. Negative values are KiB (e.g. -64000 = 64 MB).
func WithCacheSize(pages int) Option {
	return func(c *config) { c.cacheSize = pages }
}

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option {
	return func(c *config) { c.synchronous = mode }
}

// WithMkdirAll creates parent directories of the database path before
// opening.
func WithMkdirAll() Option {
	return func(c *config) { c.mkdirAll = true }
}

// WithSchema queues inline SQL to execute after pragmas are applied.
func WithSchema(s string) Option {
	return func(c *config) { c.schemas = append(c.schemas, s) }
}

// WithoutPing skips the db.Ping() verification after opening.
func WithoutPing() Option {
	return func(c *config) { c.ping = false }
}

// WithoutForeignKeys disables PRAGMA foreign_keys (rarely needed).
func WithoutForeignKeys() Option {
	return func(c *config) { c.foreignKeys = false }
}

// Open opens the SQLite database at path, applies pragmas and queued
// schemas, and verifies the connection.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{
		driver:      "sqlite",
		synchronous: "NORMAL",
		busyTimeout: 10_000,
		foreignKeys: true,
		ping:        true,
	}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	fail := func(err error) (*sql.DB, error) {
		db.Close()
		return nil, err
	}

	for _, p := range cfg.pragmas() {
		if _, err := db.Exec(p); err != nil {
			return fail(fmt.Errorf("dbopen: %s: %w", p, err))
		}
	}
	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			return fail(fmt.Errorf("dbopen: exec schema: %w", err))
		}
	}
	if cfg.ping {
		if err := db.Ping(); err != nil {
			return fail(fmt.Errorf("dbopen: ping: %w", err))
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests and closes it via
// t.Cleanup. MaxOpenConns is pinned to 1: every connection to ":memory:"
// is a separate database, so pooling would scatter the tables.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
