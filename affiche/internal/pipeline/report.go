package pipeline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Report renders the per-source outcome table with a TOTAL row, aligned on
// display width so wide characters in source tags keep the columns
// straight.
func (o *Outcome) Report() string {
	headers := []string{"SOURCE", "FETCHED", "MISSING", "SKIPPED", "DROPPED", "EVENTS", "INSERTED", "DUPES", "FAILED"}

	tags := make([]string, 0, len(o.Sources))
	for tag := range o.Sources {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	rows := make([][]string, 0, len(tags)+1)
	for _, tag := range tags {
		c := o.Sources[tag]
		rows = append(rows, countRow(tag,
			c.Fetched, c.Missing, c.Skipped, c.Dropped,
			c.Normalized, c.Inserted, c.Duplicates, c.InsertFailed))
	}
	run := o.Run
	rows = append(rows, countRow("TOTAL",
		run.Fetched, run.Missing, run.Skipped, run.Dropped,
		run.Normalized, run.Inserted, run.Duplicates, run.InsertFailed))

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(row []string) {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == 0 {
				b.WriteString(padRight(cell, widths[i]))
			} else {
				b.WriteString(padLeft(cell, widths[i]))
			}
		}
		b.WriteByte('\n')
	}
	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

func countRow(label string, counts ...int) []string {
	row := make([]string, 0, len(counts)+1)
	row = append(row, label)
	for _, c := range counts {
		row = append(row, strconv.Itoa(c))
	}
	return row
}

// padRight and padLeft pad to a display width, not a rune count.
func padRight(s string, width int) string {
	return s + strings.Repeat(" ", width-runewidth.StringWidth(s))
}

func padLeft(s string, width int) string {
	return strings.Repeat(" ", width-runewidth.StringWidth(s)) + s
}
