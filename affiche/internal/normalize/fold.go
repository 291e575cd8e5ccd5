package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SearchText builds the folded text stored beside each event for search
// and dedup comparisons: diacritic marks removed, lower cased, whitespace
// collapsed. Empty parts are skipped.
func SearchText(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	// Transformer chains are stateful, so build one per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, b.String())
	if err != nil {
		folded = b.String()
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}
