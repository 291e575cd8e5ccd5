// Package store is the data access layer for the catalog database.
//
// The store receives an already-opened *sql.DB; it does not own connection
// lifecycle. One database holds both sides of the pipeline: the raw_records
// intake queue and the deduplicated events catalog, so FETCH, INSERT and
// RETIRE all run against a single transactional boundary.
package store

import "database/sql"

// Store wraps the catalog database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
