package extract

import "testing"

func TestMapTableFullRow(t *testing.T) {
	e := New(Config{})
	headers := []string{"event_name", "venue", "address", "date", "description", "url", "category", "city", "phone"}
	rows := [][]string{
		{"Songwriter Night", "The Bluebird Cafe", "4104 Hillsboro Pike", "2025-06-14", "in the round", "https://bluebirdcafe.com", "music", "Nashville", "(615) 383-1461"},
	}

	items := e.MapTable(headers, rows)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	want := CandidateItem{
		Name:         "Songwriter Night",
		VenueName:    "The Bluebird Cafe",
		VenueAddress: "4104 Hillsboro Pike",
		VenueCity:    "Nashville",
		EventDate:    "2025-06-14",
		Phone:        "(615) 383-1461",
		URL:          "https://bluebirdcafe.com",
		Category:     "music",
		Description:  "in the round",
	}
	if it != want {
		t.Errorf("item = %+v, want %+v", it, want)
	}
}

func TestMapTableHeaderNormalization(t *testing.T) {
	e := New(Config{})
	headers := []string{"  Title ", "VENUE_NAME", "When"}
	rows := [][]string{{"Opry Live", "Grand Ole Opry", "June 14 @ 8:00 pm"}}

	items := e.MapTable(headers, rows)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Name != "Opry Live" || items[0].VenueName != "Grand Ole Opry" || items[0].EventDate != "June 14 @ 8:00 pm" {
		t.Errorf("item = %+v", items[0])
	}
}

func TestMapTableColumnPriority(t *testing.T) {
	e := New(Config{})
	// "location" is a venue-name synonym, not an address one; the address
	// column still binds independently.
	headers := []string{"title", "location", "address"}
	rows := [][]string{{"Show", "Ryman Auditorium", "116 5th Ave N"}}

	items := e.MapTable(headers, rows)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].VenueName != "Ryman Auditorium" {
		t.Errorf("venue = %q, want Ryman Auditorium", items[0].VenueName)
	}
	if items[0].VenueAddress != "116 5th Ave N" {
		t.Errorf("address = %q, want 116 5th Ave N", items[0].VenueAddress)
	}
}

func TestMapTableDuplicateFieldColumns(t *testing.T) {
	e := New(Config{})
	// Two headers both mean "name"; the first one wins and the second
	// column's cells are ignored rather than overwriting.
	headers := []string{"name", "title"}
	rows := [][]string{{"A Night Out", "Ignored Title"}}

	items := e.MapTable(headers, rows)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Name != "A Night Out" {
		t.Errorf("name = %q, want A Night Out", items[0].Name)
	}
	if items[0].Description != "" {
		t.Errorf("description = %q, want empty", items[0].Description)
	}
}

func TestMapTableSkipsRows(t *testing.T) {
	e := New(Config{})
	headers := []string{"name", "address"}
	rows := [][]string{
		{"", "100 Main St"},     // no name
		{"   ", "200 Main St"},  // blank name
		{"Kept Venue"},          // short row, address column missing
		{},                      // empty row
	}

	items := e.MapTable(headers, rows)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1: %+v", len(items), items)
	}
	if items[0].Name != "Kept Venue" || items[0].VenueAddress != "" {
		t.Errorf("item = %+v", items[0])
	}
}

func TestMapTableNoRecognizedHeaders(t *testing.T) {
	e := New(Config{})
	items := e.MapTable([]string{"alpha", "beta"}, [][]string{{"x", "y"}})
	if items != nil {
		t.Errorf("got %+v, want nil", items)
	}
}
