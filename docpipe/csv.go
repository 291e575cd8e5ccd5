package docpipe

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// csvDelimiters are the candidate separators, tried by frequency in the first line.
var csvDelimiters = []rune{',', ';', '\t', '|'}

// extractCSV parses a delimited text file into one Table. The separator is
// sniffed from the first non-empty line.
func extractCSV(path string) (string, []Section, []Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, nil, err
	}
	defer f.Close()

	delim, err := sniffDelimiter(f)
	if err != nil {
		return "", nil, nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", nil, nil, err
	}

	reader := csv.NewReader(f)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return "", nil, nil, fmt.Errorf("read csv: %w", err)
	}

	var rows [][]string
	for _, rec := range records {
		empty := true
		for i, cell := range rec {
			rec[i] = strings.TrimSpace(cell)
			if rec[i] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, rec)
		}
	}
	if len(rows) == 0 {
		return "", nil, nil, nil
	}

	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Join(row, "\t"))
	}

	sections := []Section{{
		Text: sb.String(),
		Type: "table",
		Metadata: map[string]string{
			"rows":      strconv.Itoa(len(rows)),
			"delimiter": string(delim),
		},
	}}
	tables := []Table{{Rows: rows}}

	return "", sections, tables, nil
}

// sniffDelimiter picks the candidate separator occurring most often in the
// first non-empty line. Defaults to comma.
func sniffDelimiter(f *os.File) (rune, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		best := ','
		bestCount := 0
		for _, d := range csvDelimiters {
			if c := strings.Count(line, string(d)); c > bestCount {
				best = d
				bestCount = c
			}
		}
		return best, nil
	}
	if err := scanner.Err(); err != nil {
		return ',', err
	}
	return ',', nil
}
