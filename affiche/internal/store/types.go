package store

import "encoding/json"

// RawRecord is one collected record awaiting normalization. Immutable once
// written; the pipeline deletes it after successful promotion.
type RawRecord struct {
	ID         int64           `json:"id"`
	SourceTag  string          `json:"source_tag"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt int64           `json:"received_at"`
}

// Event is one canonical catalog record. URL is the dedup key: the first
// insert for a URL wins and later ones are silently ignored. Rows are never
// updated after insertion.
type Event struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	EventDate    string   `json:"event_date,omitempty"` // "" = unknown, stored as NULL
	VenueName    string   `json:"venue_name"`
	VenueAddress string   `json:"venue_address"`
	VenueCity    string   `json:"venue_city"`
	Description  string   `json:"description"`
	Source       string   `json:"source"` // display label, not the source tag
	Category     string   `json:"category"`
	Genre        string   `json:"genre,omitempty"`
	Season       string   `json:"season,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	SearchText   string   `json:"-"`
	CreatedAt    int64    `json:"created_at"`
}

// Run is the bookkeeping row for one batch run.
type Run struct {
	ID           string `json:"id"`
	StartedAt    int64  `json:"started_at"`
	FinishedAt   *int64 `json:"finished_at,omitempty"`
	Status       string `json:"status"` // "running", "done" or "error"
	Fetched      int    `json:"fetched"`
	Missing      int    `json:"missing"`
	Skipped      int    `json:"skipped"`
	Dropped      int    `json:"dropped"`
	Normalized   int    `json:"normalized"`
	Inserted     int    `json:"inserted"`
	Duplicates   int    `json:"duplicates"`
	InsertFailed int    `json:"insert_failed"`
	Retired      int    `json:"retired"`
	Error        string `json:"error,omitempty"`
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusError   = "error"
)

// SearchQuery filters the events catalog. Text, when set, is an FTS5 match
// expression; Source and Category are exact filters on the display label and
// category columns.
type SearchQuery struct {
	Text     string `json:"q,omitempty"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
