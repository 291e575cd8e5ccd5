package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/affiche/affiche/internal/dates"
	"github.com/hazyhaar/affiche/affiche/internal/store"
)

// ticketNormalizer handles the ticketing-API family (Ticketmaster,
// SeatGeek). The feeds are fully structured event listings and their
// category assignment is authoritative, so the keyword classifier never
// runs here.
type ticketNormalizer struct {
	tag   string
	label string
	dates *dates.Standardizer
}

func (n *ticketNormalizer) Normalize(ctx context.Context, rec *store.RawRecord) ([]*store.Event, error) {
	p, err := decodePayload(rec)
	if err != nil {
		return nil, err
	}
	// An event listing without both a name and a venue is unusable.
	name := strings.TrimSpace(p.Name)
	venue := strings.TrimSpace(p.VenueName)
	if name == "" || venue == "" {
		return nil, nil
	}
	if p.Latitude.bad || p.Longitude.bad {
		return nil, fmt.Errorf("%s record %d: unparseable coordinates", rec.SourceTag, rec.ID)
	}

	category := p.Category
	if category == "" {
		category = "Event"
	}
	url := strings.TrimSpace(p.URL)
	if url == "" {
		url = syntheticURL(rec.SourceTag, name, p.VenueAddress)
	}

	ev := &store.Event{
		Name:         name,
		URL:          url,
		EventDate:    n.dates.Standardize(p.EventDate, n.tag),
		VenueName:    venue,
		VenueAddress: p.VenueAddress,
		VenueCity:    p.VenueCity,
		Description:  p.Description,
		Source:       n.label,
		Category:     titleCase(category),
		Genre:        p.Genre,
		Season:       string(p.Season),
		Latitude:     p.Latitude.val,
		Longitude:    p.Longitude.val,
	}
	ev.SearchText = SearchText(ev.Name, ev.VenueName, ev.VenueAddress, ev.Description)
	return []*store.Event{ev}, nil
}
