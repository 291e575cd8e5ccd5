package normalize

import (
	"context"
	"strings"
	"testing"
)

func TestTicketNormalize(t *testing.T) {
	r := newTestRegistry(t)
	n, _ := r.Lookup("ticketmaster")

	events, err := n.Normalize(context.Background(), rawRecord("ticketmaster", `{
		"name": "Opry at the Ryman",
		"venue_name": "Ryman Auditorium",
		"venue_address": "116 5th Ave N",
		"venue_city": "Nashville",
		"description": "country showcase",
		"url": "https://tickets.example.com/opry",
		"category": "music",
		"genre": "Country",
		"season": 2026,
		"event_date": "2026-09-12 19:30:00",
		"latitude": 36.1612,
		"longitude": "-86.7785"
	}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Name != "Opry at the Ryman" {
		t.Errorf("name: got %q", ev.Name)
	}
	if ev.Source != "Ticketmaster" {
		t.Errorf("source: got %q", ev.Source)
	}
	if ev.EventDate != "2026-09-12T19:30:00" {
		t.Errorf("event_date: got %q", ev.EventDate)
	}
	if ev.Category != "Music" {
		t.Errorf("category: got %q", ev.Category)
	}
	if ev.Genre != "Country" {
		t.Errorf("genre: got %q", ev.Genre)
	}
	if ev.Season != "2026" {
		t.Errorf("season: got %q", ev.Season)
	}
	if ev.Latitude == nil || *ev.Latitude != 36.1612 {
		t.Errorf("latitude: got %v", ev.Latitude)
	}
	if ev.Longitude == nil || *ev.Longitude != -86.7785 {
		t.Errorf("longitude: got %v", ev.Longitude)
	}
	if ev.SearchText != "opry at the ryman ryman auditorium 116 5th ave n country showcase" {
		t.Errorf("search_text: got %q", ev.SearchText)
	}
}

func TestTicketRequiresNameAndVenue(t *testing.T) {
	// A ticket feed row is an event listing; without both the event name
	// and the venue it cannot be cataloged.
	r := newTestRegistry(t)
	n, _ := r.Lookup("ticketmaster")
	ctx := context.Background()

	for _, payload := range []string{
		`{"venue_name": "Ryman Auditorium"}`,
		`{"name": "Opry at the Ryman"}`,
		`{"name": "  ", "venue_name": "Ryman Auditorium"}`,
	} {
		events, err := n.Normalize(ctx, rawRecord("ticketmaster", payload))
		if err != nil {
			t.Fatalf("normalize %s: %v", payload, err)
		}
		if events != nil {
			t.Errorf("payload %s should be dropped", payload)
		}
	}
}

func TestTicketDefaults(t *testing.T) {
	r := newTestRegistry(t)
	n, _ := r.Lookup("seatgeek")

	events, err := n.Normalize(context.Background(), rawRecord("seatgeek",
		`{"name": "Predators vs Blues", "venue_name": "Bridgestone Arena"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	ev := events[0]
	if ev.Source != "SeatGeek" {
		t.Errorf("source: got %q", ev.Source)
	}
	if ev.Category != "Event" {
		t.Errorf("category default: got %q", ev.Category)
	}
	if ev.EventDate != "" {
		t.Errorf("event_date: got %q, want empty", ev.EventDate)
	}
	if !strings.HasPrefix(ev.URL, "seatgeek://record/") {
		t.Errorf("url should be synthesized: got %q", ev.URL)
	}
	if ev.Latitude != nil || ev.Longitude != nil {
		t.Error("coordinates should stay null")
	}
}

func TestTicketMalformedPayload(t *testing.T) {
	r := newTestRegistry(t)
	n, _ := r.Lookup("ticketmaster")

	if _, err := n.Normalize(context.Background(), rawRecord("ticketmaster", `not json`)); err == nil {
		t.Error("malformed payload should error")
	}
}
