package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/affiche/affiche/internal/store"
)

// directoryNormalizer handles place-directory APIs (Yelp, Google Places).
// These are venue records rather than events: the business name doubles as
// the venue name and event dates never apply, even when the feed carries
// one. Category assignment is authoritative.
type directoryNormalizer struct {
	label    string
	category string
	city     string
}

func (n *directoryNormalizer) Normalize(ctx context.Context, rec *store.RawRecord) ([]*store.Event, error) {
	p, err := decodePayload(rec)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, nil
	}
	if p.Latitude.bad || p.Longitude.bad {
		return nil, fmt.Errorf("%s record %d: unparseable coordinates", rec.SourceTag, rec.ID)
	}

	category := p.Category
	if category == "" {
		category = n.category
	}
	city := p.VenueCity
	if city == "" {
		city = n.city
	}
	url := strings.TrimSpace(p.URL)
	if url == "" {
		url = syntheticURL(rec.SourceTag, name, p.VenueAddress)
	}

	ev := &store.Event{
		Name:         name,
		URL:          url,
		VenueName:    name,
		VenueAddress: p.VenueAddress,
		VenueCity:    city,
		Description:  p.Description,
		Source:       n.label,
		Category:     titleCase(category),
		Latitude:     p.Latitude.val,
		Longitude:    p.Longitude.val,
	}
	ev.SearchText = SearchText(ev.Name, ev.VenueName, ev.VenueAddress, ev.Description)
	return []*store.Event{ev}, nil
}
