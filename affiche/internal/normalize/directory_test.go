package normalize

import (
	"context"
	"testing"
)

func TestDirectoryNormalize(t *testing.T) {
	r := newTestRegistry(t)
	n, _ := r.Lookup("yelp")

	events, err := n.Normalize(context.Background(), rawRecord("yelp", `{
		"name": "Hattie B's Hot Chicken",
		"venue_name": "ignored by this family",
		"venue_address": "112 19th Ave S",
		"description": "nashville hot chicken",
		"url": "https://yelp.example.com/hattie-bs",
		"event_date": "2025-06-01",
		"latitude": 36.1499,
		"longitude": -86.7988
	}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Source != "Yelp" {
		t.Errorf("source: got %q", ev.Source)
	}
	// The business is the venue, whatever the payload claims.
	if ev.VenueName != "Hattie B's Hot Chicken" {
		t.Errorf("venue_name: got %q", ev.VenueName)
	}
	// Directory records are places, not events: no date survives.
	if ev.EventDate != "" {
		t.Errorf("event_date: got %q, want empty", ev.EventDate)
	}
	if ev.VenueCity != "Nashville" {
		t.Errorf("venue_city default: got %q", ev.VenueCity)
	}
	if ev.Category != "Business" {
		t.Errorf("category default: got %q", ev.Category)
	}
}

func TestDirectoryCategoryPerSource(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	n, _ := r.Lookup("google_places")
	events, err := n.Normalize(ctx, rawRecord("google_places",
		`{"name": "Parthenon", "venue_city": "West Nashville"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	ev := events[0]
	if ev.Source != "Google Places" {
		t.Errorf("source: got %q", ev.Source)
	}
	if ev.Category != "Attraction" {
		t.Errorf("category default: got %q", ev.Category)
	}
	// An explicit city is kept.
	if ev.VenueCity != "West Nashville" {
		t.Errorf("venue_city: got %q", ev.VenueCity)
	}

	// A feed-supplied category still wins over the family default.
	events, err = n.Normalize(ctx, rawRecord("google_places",
		`{"name": "Parthenon", "category": "museum"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if events[0].Category != "Museum" {
		t.Errorf("category: got %q", events[0].Category)
	}
}

func TestDirectoryRequiresName(t *testing.T) {
	r := newTestRegistry(t)
	n, _ := r.Lookup("yelp")

	events, err := n.Normalize(context.Background(), rawRecord("yelp",
		`{"venue_address": "112 19th Ave S"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if events != nil {
		t.Error("nameless record should be dropped")
	}
}
