package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/affiche/affiche/internal/dates"
	"github.com/hazyhaar/affiche/affiche/internal/store"
	"github.com/hazyhaar/affiche/affiche/internal/taxonomy"
)

// listingNormalizer handles scraped web listings (nashville.com calendars,
// underdog). No field from these pages is trusted for taxonomy, so the
// keyword classifier always assigns category and genre, and venue names
// are cleaned before use.
type listingNormalizer struct {
	tag        string
	label      string
	dates      *dates.Standardizer
	classifier *taxonomy.Classifier
	city       string
}

func (n *listingNormalizer) Normalize(ctx context.Context, rec *store.RawRecord) ([]*store.Event, error) {
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

	venue := CleanVenueName(p.VenueName)
	category, genre := n.classifier.Classify(name, p.Description, venue)

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
		EventDate:    n.dates.Standardize(p.EventDate, n.tag),
		VenueName:    venue,
		VenueAddress: p.VenueAddress,
		VenueCity:    city,
		Description:  p.Description,
		Source:       n.label,
		Category:     category,
		Genre:        genre,
		Season:       string(p.Season),
		Latitude:     p.Latitude.val,
		Longitude:    p.Longitude.val,
	}
	ev.SearchText = SearchText(ev.Name, ev.VenueName, ev.VenueAddress, ev.Description)
	return []*store.Event{ev}, nil
}
