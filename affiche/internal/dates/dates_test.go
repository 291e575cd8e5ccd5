package dates

import (
	"testing"
	"time"

	_ "time/tzdata"
)

// fixedNow pins the current-year assumption for at-style parsing.
func fixedNow() time.Time {
	return time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func newTestStandardizer(t *testing.T) *Standardizer {
	t.Helper()
	s := New(Config{}, nil)
	s.now = fixedNow
	return s
}

func TestStandardizeISO(t *testing.T) {
	s := newTestStandardizer(t)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"space separator becomes T", "2024-03-15 19:30:00", "2024-03-15T19:30:00"},
		{"offset is preserved", "2024-03-15T19:30:00-05:00", "2024-03-15T19:30:00-05:00"},
		{"zulu is preserved", "2024-03-15T19:30:00Z", "2024-03-15T19:30:00Z"},
		{"date only gets midnight", "2024-03-15", "2024-03-15T00:00:00"},
		{"minutes only gets seconds", "2024-03-15T19:30", "2024-03-15T19:30:00"},
		{"fraction is canonicalized away", "2024-03-15T19:30:00.123", "2024-03-15T19:30:00"},
		{"unparseable passes through", "next Tuesday", "next Tuesday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Standardize(tt.raw, "ticketmaster"); got != tt.want {
				t.Errorf("Standardize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStandardizeAtStyle(t *testing.T) {
	s := newTestStandardizer(t)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		// Year comes from the clock (2025); June is daylight time in Chicago.
		{"summer date", "June 14 @ 8:00 pm", "2025-06-14T20:00:00-05:00"},
		{"winter date", "December 5 @ 7:30 PM", "2025-12-05T19:30:00-06:00"},
		{"surrounding prose is ignored", "Doors at June 14 @ 8:00 pm sharp", "2025-06-14T20:00:00-05:00"},
		{"upper-case month", "JUNE 14 @ 8:00 PM", "2025-06-14T20:00:00-05:00"},
		// Minutes are required by the listing format.
		{"missing minutes passes through", "June 14 @ 8 pm", "June 14 @ 8 pm"},
		{"no at-pattern passes through", "every Friday night", "every Friday night"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Standardize(tt.raw, "nashville.com-events"); got != tt.want {
				t.Errorf("Standardize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStandardizePipeStyle(t *testing.T) {
	s := newTestStandardizer(t)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"cdt with minutes", "June 14, 2025 | 7:30PM CDT", "2025-06-14T19:30:00-05:00"},
		{"hour only", "June 14, 2025 | 7PM CDT", "2025-06-14T19:00:00-05:00"},
		{"eastern winter", "January 10, 2026 | 9PM EST", "2026-01-10T21:00:00-05:00"},
		// The zone's offset for the date wins over the stated abbreviation.
		{"stale abbreviation", "June 14, 2025 | 7PM CST", "2025-06-14T19:00:00-05:00"},
		// No abbreviation falls back to the default central zone.
		{"zone defaulted", "June 14, 2025 | 7:30PM", "2025-06-14T19:30:00-05:00"},
		// This source's failure mode is null, not passthrough.
		{"no separator is null", "June 14, 2025 7:30PM CDT", ""},
		{"too many separators is null", "June 14 | 2025 | 7:30PM", ""},
		{"garbage time is null", "June 14, 2025 | doors at dusk", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Standardize(tt.raw, "underdog"); got != tt.want {
				t.Errorf("Standardize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStandardizeSourceRouting(t *testing.T) {
	s := newTestStandardizer(t)

	// Sources that never carry usable dates are nulled immediately.
	if got := s.Standardize("open 9-5 daily", "yelp"); got != "" {
		t.Errorf("yelp date = %q, want empty", got)
	}
	// Unknown sources pass clean dates through untouched.
	if got := s.Standardize("2030-01-01T00:00:00Z", "brand_new_feed"); got != "2030-01-01T00:00:00Z" {
		t.Errorf("unknown source = %q, want passthrough", got)
	}
	// Empty input is null for every source.
	if got := s.Standardize("", "ticketmaster"); got != "" {
		t.Errorf("empty raw = %q, want empty", got)
	}
}

