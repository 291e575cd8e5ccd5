package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Line-shape patterns. The month pattern accepts any completion of the
// three-letter stem, so "Sept 14" and "September 14" both read as dates.
var (
	phonePattern = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	urlPattern   = regexp.MustCompile(`https?://\S+`)
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`(?i)(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]* \d{1,2}`),
	}
)

// Business-name length bounds for the name heuristic, in runes.
const (
	minNameLine = 5
	maxNameLine = 100
)

// lineKind is the classification of one unstructured line.
type lineKind int

const (
	lineText lineKind = iota
	linePhone
	lineURL
	lineAddress
	lineDate
	lineName
)

// ScanText walks the text line by line, accumulating one open CandidateItem
// and emitting it whenever a new name starts another. Lines with a
// "Label: Value" shape bind by label synonym; other lines classify by
// content. The scan itself applies no validity filter; run the result
// through Promote.
func (e *Extractor) ScanText(text string) []CandidateItem {
	var items []CandidateItem
	var cur CandidateItem

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < 3 {
			continue
		}
		if isStructuredLine(line) {
			cur = e.structuredLine(line, &items, cur)
		} else {
			cur = e.unstructuredLine(line, &items, cur)
		}
	}
	if cur.Name != "" {
		items = append(items, cur)
	}
	return items
}

// isStructuredLine reports whether the line has "Label: Value" shape. URLs
// contain colons too, so anything starting with a scheme is excluded.
func isStructuredLine(line string) bool {
	return strings.Contains(line, ":") && !strings.HasPrefix(line, "http")
}

// structuredLine handles one "Label: Value" line. A name-indicating label
// closes the open item and starts a fresh one seeded as both name and venue;
// other known labels set their field; unknown labels keep the whole line as
// description so nothing is dropped.
func (e *Extractor) structuredLine(line string, items *[]CandidateItem, cur CandidateItem) CandidateItem {
	label, value, _ := strings.Cut(line, ":")
	label = strings.ToLower(strings.TrimSpace(label))
	value = strings.TrimSpace(value)

	if e.nameLabels[label] {
		if cur.Name != "" {
			*items = append(*items, cur)
		}
		return CandidateItem{Name: value, VenueName: value}
	}
	if kind, ok := e.labelField[label]; ok {
		*cur.fieldRef(kind) = value
		return cur
	}
	cur.appendDescription(line)
	return cur
}

// unstructuredLine classifies a free-form line and routes it. Field-bearing
// kinds fill their slot only once; repeats land in the description instead
// of overwriting what an earlier line established.
func (e *Extractor) unstructuredLine(line string, items *[]CandidateItem, cur CandidateItem) CandidateItem {
	switch e.classifyLine(line) {
	case lineName:
		if cur.Name != "" {
			*items = append(*items, cur)
		}
		return CandidateItem{Name: line, VenueName: line}
	case linePhone:
		setOnce(&cur, fieldPhone, line)
	case lineURL:
		setOnce(&cur, fieldURL, line)
	case lineAddress:
		setOnce(&cur, fieldAddress, line)
	case lineDate:
		setOnce(&cur, fieldDate, line)
	default:
		cur.appendDescription(line)
	}
	return cur
}

func setOnce(it *CandidateItem, kind fieldKind, line string) {
	ref := it.fieldRef(kind)
	if *ref == "" {
		*ref = line
		return
	}
	it.appendDescription(line)
}

// classifyLine decides what a free-form line carries. Priority matters:
// phone and URL patterns are near-unambiguous, address and date heuristics
// are narrower than the name heuristic, and only then does a line get to be
// a name. Everything else is prose.
func (e *Extractor) classifyLine(line string) lineKind {
	switch {
	case phonePattern.MatchString(line):
		return linePhone
	case urlPattern.MatchString(line):
		return lineURL
	case e.looksLikeAddress(line):
		return lineAddress
	case looksLikeDate(line):
		return lineDate
	case e.looksLikeName(line):
		return lineName
	default:
		return lineText
	}
}

// looksLikeAddress checks whole-word membership against the street-type and
// locality vocabulary. Word membership rather than substring match keeps
// "first" from reading as "st".
func (e *Extractor) looksLikeAddress(line string) bool {
	for _, tok := range tokens(line) {
		if e.addrTokens[tok] {
			return true
		}
	}
	return false
}

func looksLikeDate(line string) bool {
	for _, p := range datePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// looksLikeName accepts lines of plausible business-name length that either
// carry a name-indicator token or start with a capital.
func (e *Extractor) looksLikeName(line string) bool {
	n := utf8.RuneCountInString(line)
	if n < minNameLine || n > maxNameLine {
		return false
	}
	lower := strings.ToLower(line)
	for _, tok := range e.cfg.NameTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	first, _ := utf8.DecodeRuneInString(line)
	return unicode.IsUpper(first)
}
