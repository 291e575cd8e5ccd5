package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// venueSuffix matches one trailing generic venue word that adds no
// identity to the name.
var venueSuffix = regexp.MustCompile(`(?i)\s+(venue|hall|theater|theatre)$`)

// CleanVenueName collapses whitespace, strips a trailing generic venue
// word and title-cases the rest, so "the ryman theater " and "The Ryman"
// land on the same catalog value.
func CleanVenueName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	name = venueSuffix.ReplaceAllString(name, "")
	return titleCase(name)
}

// titleCase title-cases text for display columns. Casers are stateful, so
// build one per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// categoryCase normalizes a feed-supplied category for display:
// underscores become spaces, then title case ("civic_facility" becomes
// "Civic Facility").
func categoryCase(c string) string {
	return titleCase(strings.ReplaceAll(c, "_", " "))
}
