package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/affiche/idgen"
)

// InsertEvent writes one catalog record with insert-or-ignore semantics on
// the URL. The first write for a URL wins; inserted reports whether this
// call was that first write. A false return with nil error means a duplicate
// was silently ignored.
func (s *Store) InsertEvent(ctx context.Context, ev *Event) (inserted bool, err error) {
	if ev.ID == "" {
		ev.ID = idgen.New()
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().UnixMilli()
	}
	eventDate := sql.NullString{String: ev.EventDate, Valid: ev.EventDate != ""}

	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO events (id, name, url, event_date, venue_name, venue_address,
		venue_city, description, source, category, genre, season, latitude, longitude,
		search_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		ev.ID, ev.Name, ev.URL, eventDate, ev.VenueName, ev.VenueAddress,
		ev.VenueCity, ev.Description, ev.Source, ev.Category, ev.Genre, ev.Season,
		ev.Latitude, ev.Longitude, ev.SearchText, ev.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const eventColumns = `id, name, url, COALESCE(event_date, ''), venue_name, venue_address,
	venue_city, description, source, category, genre, season, latitude, longitude,
	search_text, created_at`

// GetEvent retrieves an event by ID, or nil when absent.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// GetEventByURL retrieves the event holding a dedup key, or nil when absent.
func (s *Store) GetEventByURL(ctx context.Context, url string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE url = ? LIMIT 1`, url)
	return scanEvent(row)
}

// CountEvents returns the catalog size.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

// ListSources returns the distinct display labels present in the catalog
// with their record counts, for the browse surface.
func (s *Store) ListSources(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM events GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

func scanEvent(row *sql.Row) (*Event, error) {
	var ev Event
	err := row.Scan(
		&ev.ID, &ev.Name, &ev.URL, &ev.EventDate, &ev.VenueName, &ev.VenueAddress,
		&ev.VenueCity, &ev.Description, &ev.Source, &ev.Category, &ev.Genre, &ev.Season,
		&ev.Latitude, &ev.Longitude, &ev.SearchText, &ev.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &ev, nil
}

func scanEventRows(rows *sql.Rows) (*Event, error) {
	var ev Event
	err := rows.Scan(
		&ev.ID, &ev.Name, &ev.URL, &ev.EventDate, &ev.VenueName, &ev.VenueAddress,
		&ev.VenueCity, &ev.Description, &ev.Source, &ev.Category, &ev.Genre, &ev.Season,
		&ev.Latitude, &ev.Longitude, &ev.SearchText, &ev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &ev, nil
}
