// Package normalize converts raw source records into canonical catalog
// events.
//
// A Registry maps each collector source tag to the Normalizer that
// understands its payload shape. Normalizers own all record-level policy:
// required fields, per-source defaults, date standardization and category
// authority. The leaf helpers they call (dates, taxonomy, geo, extract)
// never error on malformed input; at this layer a returned error means the
// record is skipped, and a nil event slice with nil error means the record
// is dropped as unusable.
package normalize

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hazyhaar/affiche/affiche/internal/dates"
	"github.com/hazyhaar/affiche/affiche/internal/extract"
	"github.com/hazyhaar/affiche/affiche/internal/geo"
	"github.com/hazyhaar/affiche/affiche/internal/llmextract"
	"github.com/hazyhaar/affiche/affiche/internal/store"
	"github.com/hazyhaar/affiche/affiche/internal/taxonomy"
)

// Normalizer turns one raw record into zero or more catalog events.
type Normalizer interface {
	Normalize(ctx context.Context, rec *store.RawRecord) ([]*store.Event, error)
}

// Config assembles the per-source normalizers and their shared helpers.
type Config struct {
	Dates    dates.Config    `yaml:"dates"`
	Taxonomy taxonomy.Config `yaml:"taxonomy"`
	Extract  extract.Config  `yaml:"extract"`
	// Geo holds the planar projection parameters; the zero value selects
	// the built-in defaults.
	Geo geo.Params `yaml:"geo"`
	// Datasets configures the GIS feature feeds by dataset name.
	Datasets []DatasetConfig `yaml:"datasets"`
	// Labels maps source tags to the display label stored on events.
	// Unmapped tags use the tag itself.
	Labels map[string]string `yaml:"labels"`
	// DefaultCity fills venue_city when a feed names none.
	DefaultCity string `yaml:"default_city"`

	// LLM, when set, is the text-understanding fallback for documents the
	// line extractor cannot read.
	LLM    *llmextract.Client `yaml:"-"`
	Logger *slog.Logger       `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Geo == (geo.Params{}) {
		c.Geo = geo.DefaultParams()
	}
	if c.Datasets == nil {
		c.Datasets = defaultDatasets()
	}
	if c.Labels == nil {
		c.Labels = map[string]string{
			"ticketmaster":         "Ticketmaster",
			"seatgeek":             "SeatGeek",
			"yelp":                 "Yelp",
			"google_places":        "Google Places",
			"nashville_arcgis":     "Nashville ArcGIS",
			"nashville.com-events": "Nashville Events",
			"nashville.com-hotels": "Nashville Hotels",
			"underdog":             "Underdog Venue",
		}
	}
	if c.DefaultCity == "" {
		c.DefaultCity = "Nashville"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Registry dispatches raw records to per-source normalizers.
type Registry struct {
	exact  map[string]Normalizer
	prefix map[string]Normalizer
}

// New builds a Registry with every known source wired: the ticketing APIs,
// the place directories, the GIS feature feeds, the scraped listings and
// the document family.
func New(cfg Config) *Registry {
	cfg.defaults()
	log := cfg.Logger.With("component", "normalize")

	std := dates.New(cfg.Dates, cfg.Logger)
	classifier := taxonomy.New(cfg.Taxonomy)
	extractor := extract.New(cfg.Extract)
	reproj := geo.New(cfg.Geo)

	label := func(tag string) string {
		if l, ok := cfg.Labels[tag]; ok {
			return l
		}
		return tag
	}

	r := &Registry{
		exact:  make(map[string]Normalizer),
		prefix: make(map[string]Normalizer),
	}
	for _, tag := range []string{"ticketmaster", "seatgeek"} {
		r.Register(tag, &ticketNormalizer{tag: tag, label: label(tag), dates: std})
	}
	r.Register("yelp", &directoryNormalizer{
		label: label("yelp"), category: "Business", city: cfg.DefaultCity,
	})
	r.Register("google_places", &directoryNormalizer{
		label: label("google_places"), category: "Attraction", city: cfg.DefaultCity,
	})
	r.Register("nashville_arcgis", &gisNormalizer{
		label:    label("nashville_arcgis"),
		datasets: datasetIndex(cfg.Datasets),
		reproj:   reproj,
		category: "Civic Facility",
		city:     cfg.DefaultCity,
		log:      log,
	})
	for _, tag := range []string{"nashville.com-events", "nashville.com-hotels", "underdog"} {
		r.Register(tag, &listingNormalizer{
			tag: tag, label: label(tag), dates: std,
			classifier: classifier, city: cfg.DefaultCity,
		})
	}
	r.RegisterPrefix("document:", &documentNormalizer{
		extractor:  extractor,
		classifier: classifier,
		llm:        cfg.LLM,
		log:        log,
	})
	return r
}

// Register binds a source tag to a normalizer, replacing any previous
// binding.
func (r *Registry) Register(tag string, n Normalizer) {
	r.exact[tag] = n
}

// RegisterPrefix binds a whole tag family, e.g. "document:" covering
// "document:pdf", "document:csv" and so on.
func (r *Registry) RegisterPrefix(prefix string, n Normalizer) {
	r.prefix[prefix] = n
}

// Lookup resolves a tag: exact bindings first, then the longest matching
// registered prefix. ok is false for unregistered tags, which the caller
// counts and leaves pending.
func (r *Registry) Lookup(tag string) (Normalizer, bool) {
	if n, ok := r.exact[tag]; ok {
		return n, true
	}
	var (
		best    Normalizer
		bestLen = -1
	)
	for prefix, n := range r.prefix {
		if strings.HasPrefix(tag, prefix) && len(prefix) > bestLen {
			best, bestLen = n, len(prefix)
		}
	}
	return best, best != nil
}

// payload is the superset of fields the structured JSON feeds carry.
// Collectors are not consistent about numeric types, so coordinates and
// seasons accept numbers or strings.
type payload struct {
	Name         string     `json:"name"`
	VenueName    string     `json:"venue_name"`
	VenueAddress string     `json:"venue_address"`
	VenueCity    string     `json:"venue_city"`
	Description  string     `json:"description"`
	URL          string     `json:"url"`
	Category     string     `json:"category"`
	Genre        string     `json:"genre"`
	Season       flexString `json:"season"`
	EventDate    string     `json:"event_date"`
	Latitude     flexFloat  `json:"latitude"`
	Longitude    flexFloat  `json:"longitude"`
}

func decodePayload(rec *store.RawRecord) (*payload, error) {
	var p payload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s record %d: %w", rec.SourceTag, rec.ID, err)
	}
	return &p, nil
}

// flexFloat decodes a JSON number, a numeric string, or null. A present
// but unparseable value is remembered instead of failing the whole decode,
// so each source family can pick its own severity for bad coordinates.
type flexFloat struct {
	val *float64
	bad bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			f.bad = true
			return nil
		}
		s = strings.TrimSpace(unq)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.bad = true
		return nil
	}
	f.val = &v
	return nil
}

// flexString decodes a JSON string or a bare scalar to its literal text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		*f = flexString(unq)
		return nil
	}
	*f = flexString(s)
	return nil
}

// syntheticURL builds a deterministic dedup key for records whose feed has
// no usable URL, so re-running the same input collapses to one catalog row.
func syntheticURL(tag, name, address string) string {
	scheme := strings.ReplaceAll(tag, "_", "-")
	sum := md5.Sum([]byte(name + "|" + address))
	return scheme + "://record/" + hex.EncodeToString(sum[:])[:12]
}
