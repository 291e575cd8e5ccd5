// Package extract recovers candidate catalog records from documents that
// carry no guaranteed layout: PDF text dumps, word-processor paragraphs,
// spreadsheet grids, CSV exports. Two entry points share one synonym
// vocabulary: ScanText runs a line-classification state machine over free
// text, MapTable maps spreadsheet columns by header name. Both produce
// CandidateItems, transient accumulators that only become records once
// Promote confirms they have a usable name and a dedup key.
//
// Extraction never returns an error. Junk input produces zero items; the
// caller decides what an empty result means for its source.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hazyhaar/affiche/horosafe"
)

// Promote thresholds. Names shorter than minPromoteName runes are noise from
// headers and page furniture; descriptions are capped so one rambling
// document cannot bloat a record.
const (
	minPromoteName   = 3
	descriptionLimit = 500
)

// CandidateItem accumulates fields while scanning one record's worth of
// lines or one table row. It is not persisted; Promote filters and finishes
// items before a normalizer shapes them into catalog records.
type CandidateItem struct {
	Name         string
	VenueName    string
	VenueAddress string
	VenueCity    string
	EventDate    string
	Phone        string
	URL          string
	Category     string
	Description  string
}

// fieldKind enumerates the CandidateItem fields the synonym tables can bind.
type fieldKind int

const (
	fieldName fieldKind = iota
	fieldVenueName
	fieldAddress
	fieldCity
	fieldDate
	fieldPhone
	fieldURL
	fieldCategory
	fieldDescription
)

func (it *CandidateItem) fieldRef(k fieldKind) *string {
	switch k {
	case fieldName:
		return &it.Name
	case fieldVenueName:
		return &it.VenueName
	case fieldAddress:
		return &it.VenueAddress
	case fieldCity:
		return &it.VenueCity
	case fieldDate:
		return &it.EventDate
	case fieldPhone:
		return &it.Phone
	case fieldURL:
		return &it.URL
	case fieldCategory:
		return &it.Category
	default:
		return &it.Description
	}
}

// appendDescription grows the description buffer without overwriting.
func (it *CandidateItem) appendDescription(text string) {
	if it.Description == "" {
		it.Description = text
		return
	}
	it.Description += " " + text
}

// Config carries the synonym vocabulary. Every list has a default matching
// the field names seen in real uploads; supplying any list replaces that
// list only.
type Config struct {
	// Label synonyms for structured "Label: Value" lines.
	NameLabels    []string `yaml:"name_labels"`
	AddressLabels []string `yaml:"address_labels"`
	DateLabels    []string `yaml:"date_labels"`
	PhoneLabels   []string `yaml:"phone_labels"`
	URLLabels     []string `yaml:"url_labels"`

	// Column-header synonyms for tabular input.
	NameColumns        []string `yaml:"name_columns"`
	VenueColumns       []string `yaml:"venue_columns"`
	AddressColumns     []string `yaml:"address_columns"`
	DateColumns        []string `yaml:"date_columns"`
	DescriptionColumns []string `yaml:"description_columns"`
	URLColumns         []string `yaml:"url_columns"`
	CategoryColumns    []string `yaml:"category_columns"`
	CityColumns        []string `yaml:"city_columns"`
	PhoneColumns       []string `yaml:"phone_columns"`

	// AddressTokens mark a line as an address when any appears as a whole
	// word. NameTokens mark a line as a business name when any appears as a
	// substring.
	AddressTokens []string `yaml:"address_tokens"`
	NameTokens    []string `yaml:"name_tokens"`

	// DefaultCity fills VenueCity when the document names none.
	DefaultCity string `yaml:"default_city"`
}

func (c *Config) defaults() {
	if c.NameLabels == nil {
		c.NameLabels = []string{"venue", "location", "place", "event", "name"}
	}
	if c.AddressLabels == nil {
		c.AddressLabels = []string{"address", "location address", "venue address"}
	}
	if c.DateLabels == nil {
		c.DateLabels = []string{"date", "event date", "when"}
	}
	if c.PhoneLabels == nil {
		c.PhoneLabels = []string{"phone", "telephone", "contact"}
	}
	if c.URLLabels == nil {
		c.URLLabels = []string{"website", "url", "web", "link"}
	}
	if c.NameColumns == nil {
		c.NameColumns = []string{"name", "event_name", "title", "event", "business_name"}
	}
	if c.VenueColumns == nil {
		c.VenueColumns = []string{"venue", "venue_name", "location", "place"}
	}
	if c.AddressColumns == nil {
		c.AddressColumns = []string{"address", "venue_address", "street_address", "location_address", "street"}
	}
	if c.DateColumns == nil {
		c.DateColumns = []string{"date", "event_date", "start_date", "datetime", "when", "event_time"}
	}
	if c.DescriptionColumns == nil {
		c.DescriptionColumns = []string{"description", "desc", "details", "info", "about", "notes"}
	}
	if c.URLColumns == nil {
		c.URLColumns = []string{"url", "website", "link", "web", "webpage"}
	}
	if c.CategoryColumns == nil {
		c.CategoryColumns = []string{"category", "type", "genre", "event_type"}
	}
	if c.CityColumns == nil {
		c.CityColumns = []string{"city", "venue_city", "location_city"}
	}
	if c.PhoneColumns == nil {
		c.PhoneColumns = []string{"phone", "telephone", "contact", "phone_number"}
	}
	if c.AddressTokens == nil {
		c.AddressTokens = []string{
			"street", "st", "avenue", "ave", "road", "rd",
			"boulevard", "blvd", "drive", "dr", "nashville", "tn",
		}
	}
	if c.NameTokens == nil {
		c.NameTokens = []string{"&", "and", "'s", "the ", "restaurant", "bar", "cafe", "hotel", "venue"}
	}
	if c.DefaultCity == "" {
		c.DefaultCity = "Nashville"
	}
}

// columnSpec pairs a field with its header synonyms; order fixes binding
// priority when one header could serve two fields.
type columnSpec struct {
	kind  fieldKind
	names map[string]bool
}

// Extractor holds the compiled vocabulary. Safe for concurrent use.
type Extractor struct {
	cfg        Config
	nameLabels map[string]bool
	labelField map[string]fieldKind
	columns    []columnSpec
	addrTokens map[string]bool
}

// New compiles an Extractor. A zero Config yields the built-in vocabulary.
func New(cfg Config) *Extractor {
	cfg.defaults()
	e := &Extractor{
		cfg:        cfg,
		nameLabels: stringSet(cfg.NameLabels),
		labelField: make(map[string]fieldKind),
		addrTokens: stringSet(cfg.AddressTokens),
	}
	for _, l := range cfg.AddressLabels {
		e.labelField[l] = fieldAddress
	}
	for _, l := range cfg.DateLabels {
		e.labelField[l] = fieldDate
	}
	for _, l := range cfg.PhoneLabels {
		e.labelField[l] = fieldPhone
	}
	for _, l := range cfg.URLLabels {
		e.labelField[l] = fieldURL
	}
	e.columns = []columnSpec{
		{fieldName, stringSet(cfg.NameColumns)},
		{fieldVenueName, stringSet(cfg.VenueColumns)},
		{fieldAddress, stringSet(cfg.AddressColumns)},
		{fieldDate, stringSet(cfg.DateColumns)},
		{fieldDescription, stringSet(cfg.DescriptionColumns)},
		{fieldURL, stringSet(cfg.URLColumns)},
		{fieldCategory, stringSet(cfg.CategoryColumns)},
		{fieldCity, stringSet(cfg.CityColumns)},
		{fieldPhone, stringSet(cfg.PhoneColumns)},
	}
	return e
}

// Promote filters raw candidates into load-ready items. Items keep only when
// the name is at least three runes and contains a letter. Venue name falls
// back to the item name, city to the configured default, and the description
// is capped. An item without a usable absolute URL gets a deterministic
// synthetic one derived from name, address and source file, so every record
// still carries a dedup key. ext is the source format without a dot, e.g.
// "csv".
func (e *Extractor) Promote(items []CandidateItem, ext, sourcePath string) []CandidateItem {
	base := filepath.Base(sourcePath)
	out := make([]CandidateItem, 0, len(items))
	for _, it := range items {
		if utf8.RuneCountInString(it.Name) < minPromoteName || !containsAlpha(it.Name) {
			continue
		}
		if it.VenueName == "" {
			it.VenueName = it.Name
		}
		if it.VenueCity == "" {
			it.VenueCity = e.cfg.DefaultCity
		}
		if r := []rune(it.Description); len(r) > descriptionLimit {
			it.Description = string(r[:descriptionLimit])
		}
		if it.URL == "" || horosafe.ValidateURL(it.URL) != nil {
			it.URL = syntheticURL(it.Name, it.VenueAddress, base, ext)
		}
		out = append(out, it)
	}
	return out
}

// syntheticURL derives a stable dedup key for records the source document
// never gave a link. The same name, address and file always hash to the same
// key, so re-ingesting a document cannot duplicate its records.
func syntheticURL(name, address, sourceFile, ext string) string {
	sum := sha256.Sum256([]byte(name + "|" + address + "|" + sourceFile))
	return fmt.Sprintf("document://%s-event/%s", ext, hex.EncodeToString(sum[:])[:12])
}

func stringSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func containsAlpha(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// tokens lowercases and splits on anything that is not a letter or digit,
// so "St." and "123 Main St" both yield the token "st" while "first" stays
// whole.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
