package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/affiche/affiche/internal/geo"
	"github.com/hazyhaar/affiche/affiche/internal/store"
)

// maxDescriptionPart caps each folded attribute value in a GIS
// description.
const maxDescriptionPart = 100

// DatasetConfig describes one GIS feature service: which attributes carry
// the identity fields and which extras fold into the description.
type DatasetConfig struct {
	Name         string `yaml:"name"`
	Category     string `yaml:"category"`
	NameField    string `yaml:"name_field"`
	AddressField string `yaml:"address_field"`
	// LocaleField, when set, names an attribute appended to the address
	// for disambiguation.
	LocaleField string   `yaml:"locale_field,omitempty"`
	ExtraFields []string `yaml:"extra_fields,omitempty"`
}

func defaultDatasets() []DatasetConfig {
	return []DatasetConfig{
		{Name: "Parks", Category: "park", NameField: "FacilityName", AddressField: "Address",
			ExtraFields: []string{"FacilityType", "Description", "PhoneNumber", "Website"}},
		{Name: "Libraries", Category: "public_facility", NameField: "FacilityName", AddressField: "Address",
			ExtraFields: []string{"PhoneNumber", "MondayOpen", "MondayClose"}},
		{Name: "Fire Stations", Category: "public_facility", NameField: "FacilityName", AddressField: "Address"},
		{Name: "Police Precincts", Category: "public_facility", NameField: "FacilityName", AddressField: "Address",
			ExtraFields: []string{"CommanderName", "PhoneNumber", "Website"}},
		{Name: "Public Health Clinics", Category: "public_facility", NameField: "ClinicName", AddressField: "Address",
			ExtraFields: []string{"Phone", "Hours"}},
		{Name: "Public Artwork", Category: "point_of_interest", NameField: "ArtworkName", AddressField: "Location",
			ExtraFields: []string{"FirstName", "LastName", "Medium", "WebLink"}},
		{Name: "Cemetery Survey", Category: "point_of_interest", NameField: "Cemetery_Name", AddressField: "Street",
			LocaleField: "Locale",
			ExtraFields: []string{"Graveyard_Type", "Known_Burials", "Map_ID", "Locale"}},
	}
}

func datasetIndex(datasets []DatasetConfig) map[string]DatasetConfig {
	idx := make(map[string]DatasetConfig, len(datasets))
	for _, ds := range datasets {
		idx[ds.Name] = ds
	}
	return idx
}

// gisNormalizer handles GIS feature feeds. Two payload shapes arrive: a
// raw feature {dataset, attributes, geometry} carrying planar state-plane
// coordinates, and a flat record whose collector already reprojected.
// Coordinate problems are soft failures in both shapes: the record keeps a
// null coordinate pair instead of being skipped.
type gisNormalizer struct {
	label    string
	datasets map[string]DatasetConfig
	reproj   *geo.Reprojector
	category string
	city     string
	log      *slog.Logger
}

type gisGeometry struct {
	X     *float64      `json:"x"`
	Y     *float64      `json:"y"`
	Rings [][][]float64 `json:"rings"`
	Paths [][][]float64 `json:"paths"`
}

func (n *gisNormalizer) Normalize(ctx context.Context, rec *store.RawRecord) ([]*store.Event, error) {
	// Sniff the shape: raw features carry an attributes object.
	var probe struct {
		Dataset    string          `json:"dataset"`
		Attributes map[string]any  `json:"attributes"`
		Geometry   json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(rec.Payload, &probe); err != nil {
		return nil, fmt.Errorf("decode %s record %d: %w", rec.SourceTag, rec.ID, err)
	}
	if probe.Attributes != nil {
		return n.normalizeFeature(rec, probe.Dataset, probe.Attributes, probe.Geometry)
	}
	return n.normalizeFlat(rec)
}

// normalizeFlat handles collector-flattened records with geographic
// coordinates already attached.
func (n *gisNormalizer) normalizeFlat(rec *store.RawRecord) ([]*store.Event, error) {
	p, err := decodePayload(rec)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, nil
	}

	lat, lng := p.Latitude.val, p.Longitude.val
	if p.Latitude.bad || p.Longitude.bad {
		n.log.Warn("bad coordinates, keeping null pair",
			"source", rec.SourceTag, "raw_id", rec.ID, "name", name)
		lat, lng = nil, nil
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
		if lat != nil && lng != nil {
			url = mapsURL(*lat, *lng)
		} else {
			url = syntheticURL(rec.SourceTag, name, p.VenueAddress)
		}
	}

	ev := &store.Event{
		Name:         name,
		URL:          url,
		VenueName:    name,
		VenueAddress: p.VenueAddress,
		VenueCity:    city,
		Description:  p.Description,
		Source:       n.label,
		Category:     categoryCase(category),
		Latitude:     lat,
		Longitude:    lng,
	}
	ev.SearchText = SearchText(ev.Name, ev.VenueName, ev.VenueAddress, ev.Description)
	return []*store.Event{ev}, nil
}

// normalizeFeature handles raw feature payloads using the per-dataset
// field configuration.
func (n *gisNormalizer) normalizeFeature(rec *store.RawRecord, dataset string, attrs map[string]any, geomRaw json.RawMessage) ([]*store.Event, error) {
	ds, ok := n.datasets[dataset]
	if !ok {
		return nil, fmt.Errorf("%s record %d: unknown dataset %q", rec.SourceTag, rec.ID, dataset)
	}

	name := attrValue(attrs, ds.NameField)
	if utf8.RuneCountInString(name) < 2 {
		return nil, nil
	}
	address := attrValue(attrs, ds.AddressField)
	if address != "" && ds.LocaleField != "" {
		if locale := attrValue(attrs, ds.LocaleField); locale != "" {
			address = address + ", " + locale
		}
	}

	lat, lng := n.coordinates(geomRaw, name)

	// A feature that cannot be placed by address or coordinates is of no
	// use in the catalog.
	if address == "" && (lat == nil || lng == nil) {
		return nil, nil
	}

	var url string
	if lat != nil && lng != nil {
		url = mapsURL(*lat, *lng)
	} else {
		url = syntheticURL(rec.SourceTag, name, address)
	}
	category := ds.Category
	if category == "" {
		category = n.category
	}

	ev := &store.Event{
		Name:         name,
		URL:          url,
		VenueName:    name,
		VenueAddress: address,
		VenueCity:    n.city,
		Description:  n.buildDescription(attrs, ds),
		Source:       n.label,
		Category:     categoryCase(category),
		Latitude:     lat,
		Longitude:    lng,
	}
	ev.SearchText = SearchText(ev.Name, ev.VenueName, ev.VenueAddress, ev.Description)
	return []*store.Event{ev}, nil
}

// coordinates resolves a feature geometry to WGS84: a point directly, a
// polygon through its first-ring centroid, a polyline through its midpoint
// vertex. Every failure mode yields a null pair.
func (n *gisNormalizer) coordinates(geomRaw json.RawMessage, name string) (lat, lng *float64) {
	if len(geomRaw) == 0 || string(geomRaw) == "null" {
		return nil, nil
	}
	var g gisGeometry
	if err := json.Unmarshal(geomRaw, &g); err != nil {
		n.log.Warn("unreadable geometry, keeping null pair", "name", name, "error", err)
		return nil, nil
	}

	var x, y float64
	switch {
	case g.X != nil && g.Y != nil:
		x, y = *g.X, *g.Y
	case len(g.Rings) > 0:
		var ok bool
		if x, y, ok = geo.PolygonCentroid(g.Rings); !ok {
			return nil, nil
		}
	case len(g.Paths) > 0:
		var ok bool
		if x, y, ok = geo.PathMidpoint(g.Paths); !ok {
			return nil, nil
		}
	default:
		return nil, nil
	}

	lon, la, ok := n.reproj.ToWGS84(x, y)
	if !ok {
		n.log.Warn("coordinate reprojection failed, keeping null pair",
			"name", name, "x", x, "y", y)
		return nil, nil
	}
	return &la, &lon
}

// buildDescription folds the dataset name and configured extra attributes
// into "Dataset | Field: value | ..." with long values truncated.
func (n *gisNormalizer) buildDescription(attrs map[string]any, ds DatasetConfig) string {
	parts := []string{ds.Name}
	for _, field := range ds.ExtraFields {
		v := attrValue(attrs, field)
		if v == "" {
			continue
		}
		if utf8.RuneCountInString(v) > maxDescriptionPart {
			v = string([]rune(v)[:maxDescriptionPart]) + "..."
		}
		parts = append(parts, field+": "+v)
	}
	return strings.Join(parts, " | ")
}

// attrValue reads one feature attribute as trimmed text. Nulls and the
// literal "none" placeholder some layers use count as absent.
func attrValue(attrs map[string]any, field string) string {
	v, ok := attrs[field]
	if !ok || v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if strings.EqualFold(s, "none") {
		return ""
	}
	return s
}

// mapsURL builds the map link used as the dedup key for features that
// have coordinates but no URL of their own.
func mapsURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v,%v", lat, lng)
}
