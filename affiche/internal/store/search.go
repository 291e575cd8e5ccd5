package store

import (
	"context"
	"fmt"
)

// Search page-size bounds.
const (
	defaultSearchLimit = 25
	maxSearchLimit     = 100
)

// SearchEvents queries the catalog. With query text it runs an FTS5 match
// ranked by relevance; without, it returns a reverse-chronological listing.
// Source and category filters apply in both modes. The FTS index folds
// diacritics, so "cafe" matches "café".
func (s *Store) SearchEvents(ctx context.Context, q SearchQuery) ([]*Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		query string
		args  []any
	)
	if q.Text != "" {
		query = `SELECT e.id, e.name, e.url, COALESCE(e.event_date, ''), e.venue_name,
			e.venue_address, e.venue_city, e.description, e.source, e.category,
			e.genre, e.season, e.latitude, e.longitude, e.search_text, e.created_at
			FROM events_fts f
			JOIN events e ON e.rowid = f.rowid
			WHERE events_fts MATCH ?`
		args = append(args, q.Text)
		if q.Source != "" {
			query += ` AND e.source = ?`
			args = append(args, q.Source)
		}
		if q.Category != "" {
			query += ` AND e.category = ?`
			args = append(args, q.Category)
		}
		query += ` ORDER BY rank LIMIT ? OFFSET ?`
	} else {
		query = `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
		if q.Source != "" {
			query += ` AND source = ?`
			args = append(args, q.Source)
		}
		if q.Category != "" {
			query += ` AND category = ?`
			args = append(args, q.Category)
		}
		query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	}
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
