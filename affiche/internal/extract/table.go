package extract

import "strings"

// MapTable converts a header row plus data rows into one CandidateItem per
// row. Headers bind to fields by synonym lookup: fields claim columns in a
// fixed priority order and each column serves at most one field, so a sheet
// with both "venue" and "address" columns binds them to venue name and venue
// address rather than fighting over one. Rows bind cell by cell with no
// accumulation across rows; blank cells leave fields unset.
//
// Rows where the name cell is empty or the name column never bound produce
// nothing. MapTable applies no further validity filter; run the result
// through Promote.
func (e *Extractor) MapTable(headers []string, rows [][]string) []CandidateItem {
	binding := e.bindColumns(headers)
	if len(binding) == 0 {
		return nil
	}

	var items []CandidateItem
	for _, row := range rows {
		var it CandidateItem
		filled := false
		for _, b := range binding {
			if b.col >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[b.col])
			if value == "" {
				continue
			}
			*it.fieldRef(b.kind) = value
			filled = true
		}
		if !filled || it.Name == "" {
			continue
		}
		items = append(items, it)
	}
	return items
}

type boundColumn struct {
	kind fieldKind
	col  int
}

// bindColumns resolves headers to fields. Header comparison is lowercase and
// trimmed. The first header matching a field's synonyms wins that field;
// later matches for the same field are left unbound and their cells ignored.
func (e *Extractor) bindColumns(headers []string) []boundColumn {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var binding []boundColumn
	taken := make([]bool, len(headers))
	for _, spec := range e.columns {
		for i, h := range normalized {
			if taken[i] || !spec.names[h] {
				continue
			}
			binding = append(binding, boundColumn{kind: spec.kind, col: i})
			taken[i] = true
			break
		}
	}
	return binding
}
