package docpipe

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractionQuality grades PDF text extraction so callers can tell a
// readable programme from a scanned poster or a CIDFont garble.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
}

// NeedsOCR reports that the text layer is too thin or too garbled to
// trust: near-empty pages alongside images, or a low printable ratio.
func (q *ExtractionQuality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// HasVisualGap reports that the text points at figures or tables that
// live in image streams the extraction cannot reach.
func (q *ExtractionQuality) HasVisualGap() bool {
	return q.VisualRefCount > 0 && q.HasImageStreams
}

// share divides hits by total, returning empty for a zero-length sample.
func share(hits, total int, empty float64) float64 {
	if total == 0 {
		return empty
	}
	return float64(hits) / float64(total)
}

// computePrintableRatio is the share of runes that are printable text.
// An empty string rates 1.0: nothing extracted is not the same problem
// as garbage extracted.
func computePrintableRatio(text string) float64 {
	var printable, total int
	for _, r := range text {
		total++
		if printableRune(r) {
			printable++
		}
	}
	return share(printable, total, 1.0)
}

// printableRune accepts text runes and common whitespace, and rejects
// extraction artifacts: Private Use Area glyphs from unmapped CIDFonts,
// the replacement character, and stray control bytes.
func printableRune(r rune) bool {
	switch {
	case r == '\n', r == '\r', r == '\t':
		return true
	case r >= 0xE000 && r <= 0xF8FF, r == 0xFFFD, r < 0x20:
		return false
	}
	return unicode.IsPrint(r)
}

// computeWordlikeRatio is the share of whitespace-separated tokens with
// a plausible word length (2 to 15 runes). Character-by-character
// extraction yields single-rune soup and scores near zero.
func computeWordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	wordlike := 0
	for _, f := range fields {
		if n := utf8.RuneCountInString(f); 2 <= n && n <= 15 {
			wordlike++
		}
	}
	return share(wordlike, len(fields), 0)
}

// visualRefPatterns match prose references to figures, tables, and
// diagrams, French and English.
var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(voir|cf\.?|see|refer\s+to)\s+(la\s+)?(figure|fig\.?|tableau|table|sch[eé]ma|schema|image|illustration|graphique|graph|diagramme|diagram)\s*\d`),
	regexp.MustCompile(`(?i)(figure|fig\.?|tableau|table)\s+\d+`),
}

func countVisualRefs(text string) int {
	var n int
	for _, pat := range visualRefPatterns {
		n += len(pat.FindAllStringIndex(text, -1))
	}
	return n
}
