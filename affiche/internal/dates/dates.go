// Package dates standardizes the date strings carried by raw source payloads
// into canonical timestamps. Every upstream encodes dates its own way, so the
// standardizer is keyed by source tag: each tag maps to a parse style, and
// unknown tags pass the original string through untouched so a new source
// that already emits clean dates keeps working before it gets an entry here.
//
// The empty string is the null value: it means "no usable date" and is stored
// as SQL NULL downstream. Standardize never returns an error; each style has
// its own fallback (passthrough or null) per the source's failure policy.
package dates

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Style names a parse strategy for one source family.
type Style string

const (
	// StyleISO parses ISO-like combined date+time strings, tolerating a
	// space in place of the T separator. Failure passes the raw string
	// through unchanged.
	StyleISO Style = "iso"
	// StyleAt parses "Month Day @ H:MM am/pm" listing text, assuming the
	// current year and the configured civil zone. Failure passes through.
	StyleAt Style = "at"
	// StylePipe parses "Month Day, Year | Time ZONEABBR" text. Failure
	// returns null and logs, since these strings are machine-generated and
	// a miss means upstream changed format.
	StylePipe Style = "pipe"
	// StyleNone is for sources that never carry usable dates.
	StyleNone Style = "none"
)

// Config maps source tags to styles and holds the zone tables.
type Config struct {
	// Sources assigns a Style per source tag. Tags absent from the map get
	// passthrough behavior.
	Sources map[string]Style `yaml:"sources"`
	// CivilZone is the IANA zone assumed for at-style text with no zone of
	// its own.
	CivilZone string `yaml:"civil_zone"`
	// Zones maps pipe-style zone abbreviations to IANA zone names.
	Zones map[string]string `yaml:"zones"`
	// DefaultZoneAbbr applies when pipe-style text names no known zone.
	DefaultZoneAbbr string `yaml:"default_zone_abbr"`
}

func (c *Config) defaults() {
	if c.Sources == nil {
		c.Sources = map[string]Style{
			"ticketmaster":         StyleISO,
			"seatgeek":             StyleISO,
			"nashville.com-events": StyleAt,
			"nashville.com-hotels": StyleAt,
			"underdog":             StylePipe,
			"yelp":                 StyleNone,
		}
	}
	if c.CivilZone == "" {
		c.CivilZone = "America/Chicago"
	}
	if c.Zones == nil {
		c.Zones = map[string]string{
			"CDT": "America/Chicago",
			"CST": "America/Chicago",
			"EDT": "America/New_York",
			"EST": "America/New_York",
		}
	}
	if c.DefaultZoneAbbr == "" {
		c.DefaultZoneAbbr = "CST"
	}
}

// atPattern pulls "Month Day" and "H:MM am/pm" out of listing text such as
// "June 14 @ 8:00 pm". Minutes are required; "8 pm" does not parse.
var atPattern = regexp.MustCompile(`(?i)(\w+\s\d+)\s*@\s*([\d:]+\s*[ap]m)`)

// isoLayouts are tried in order. zoned records whether the layout carries an
// offset, which decides the output form: zoned inputs render RFC3339, naive
// inputs stay naive rather than being assigned a zone they never had.
var isoLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02", false},
}

// canonicalNaive is the output form for zoneless timestamps.
const canonicalNaive = "2006-01-02T15:04:05"

// Standardizer converts raw per-source date strings to canonical timestamps.
// Safe for concurrent use.
type Standardizer struct {
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
	civil *time.Location
	zones map[string]*time.Location
}

// New builds a Standardizer. A zero Config yields the built-in source table.
// Zone database misses are logged once here and surface later as the style's
// normal failure mode.
func New(cfg Config, logger *slog.Logger) *Standardizer {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dates")

	s := &Standardizer{
		cfg:   cfg,
		log:   logger,
		now:   time.Now,
		zones: make(map[string]*time.Location, len(cfg.Zones)),
	}
	if loc, err := time.LoadLocation(cfg.CivilZone); err == nil {
		s.civil = loc
	} else {
		logger.Warn("civil zone unavailable", "zone", cfg.CivilZone, "error", err)
	}
	for abbr, name := range cfg.Zones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			logger.Warn("zone unavailable", "abbr", abbr, "zone", name, "error", err)
			continue
		}
		s.zones[abbr] = loc
	}
	return s
}

// Standardize returns the canonical timestamp for raw as emitted by the given
// source, or "" when no usable date can be derived. It never errors.
func (s *Standardizer) Standardize(raw, sourceTag string) string {
	if raw == "" {
		return ""
	}
	switch s.cfg.Sources[sourceTag] {
	case StyleISO:
		return s.standardizeISO(raw)
	case StyleAt:
		return s.standardizeAt(raw)
	case StylePipe:
		return s.standardizePipe(raw, sourceTag)
	case StyleNone:
		return ""
	default:
		return raw
	}
}

func (s *Standardizer) standardizeISO(raw string) string {
	candidate := strings.Replace(strings.TrimSpace(raw), " ", "T", 1)
	for _, l := range isoLayouts {
		t, err := time.Parse(l.layout, candidate)
		if err != nil {
			continue
		}
		if l.zoned {
			return t.Format(time.RFC3339)
		}
		return t.Format(canonicalNaive)
	}
	return raw
}

func (s *Standardizer) standardizeAt(raw string) string {
	m := atPattern.FindStringSubmatch(raw)
	if m == nil || s.civil == nil {
		return raw
	}
	datePart, timePart := m[1], m[2]
	combined := titleMonth(datePart) + " " + strconv.Itoa(s.now().Year()) + " " + strings.ToUpper(timePart)
	t, err := time.ParseInLocation("January 2 2006 3:04 PM", combined, s.civil)
	if err != nil {
		return raw
	}
	return t.Format(time.RFC3339)
}

func (s *Standardizer) standardizePipe(raw, sourceTag string) string {
	parts := strings.Split(raw, "|")
	if len(parts) != 2 {
		s.log.Warn("unparseable date", "raw", raw, "source", sourceTag)
		return ""
	}
	datePart := strings.TrimSpace(parts[0])
	timePart := strings.TrimSpace(parts[1])

	// Earliest known abbreviation in the string wins.
	abbr, best := s.cfg.DefaultZoneAbbr, -1
	for candidate := range s.cfg.Zones {
		if i := strings.Index(timePart, candidate); i >= 0 && (best < 0 || i < best) {
			abbr, best = candidate, i
		}
	}
	loc, ok := s.zones[abbr]
	if !ok {
		s.log.Warn("unparseable date", "raw", raw, "source", sourceTag, "zone", abbr)
		return ""
	}

	timeClean := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(timePart, abbr, "")))
	timeLayout := "3PM"
	if strings.Contains(timeClean, ":") {
		timeLayout = "3:04PM"
	}
	combined := titleMonth(datePart) + " " + timeClean
	t, err := time.ParseInLocation("January 2, 2006 "+timeLayout, combined, loc)
	if err != nil {
		s.log.Warn("unparseable date", "raw", raw, "source", sourceTag, "error", err)
		return ""
	}
	return t.Format(time.RFC3339)
}

// titleMonth canonicalizes the leading month token so mixed-case scrapes
// ("JUNE 14") still match the parse layout.
func titleMonth(datePart string) string {
	fields := strings.Fields(datePart)
	if len(fields) == 0 {
		return datePart
	}
	month := strings.ToLower(fields[0])
	fields[0] = strings.ToUpper(month[:1]) + month[1:]
	return strings.Join(fields, " ")
}

