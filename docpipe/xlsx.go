package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// extractXLSX parses an .xlsx workbook by reading shared strings and worksheet
// cell grids from the ZIP archive. Each sheet becomes one Table and one
// tab-joined Section.
func extractXLSX(path string) (string, []Section, []Table, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var sharedFile, workbookFile *zip.File
	var sheetFiles []*zip.File
	for _, f := range r.File {
		switch {
		case f.Name == "xl/sharedStrings.xml":
			sharedFile = f
		case f.Name == "xl/workbook.xml":
			workbookFile = f
		case strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml"):
			sheetFiles = append(sheetFiles, f)
		}
	}
	if len(sheetFiles) == 0 {
		return "", nil, nil, fmt.Errorf("no worksheets found in archive")
	}
	// sheet1.xml, sheet2.xml, ... in workbook order.
	sort.Slice(sheetFiles, func(i, j int) bool {
		return sheetNumber(sheetFiles[i].Name) < sheetNumber(sheetFiles[j].Name)
	})

	var shared []string
	if sharedFile != nil {
		shared, err = parseSharedStrings(sharedFile)
		if err != nil {
			return "", nil, nil, fmt.Errorf("shared strings: %w", err)
		}
	}

	var sheetNames []string
	if workbookFile != nil {
		sheetNames, _ = parseSheetNames(workbookFile)
	}

	var sections []Section
	var tables []Table
	var title string

	for i, sf := range sheetFiles {
		rows, err := parseSheetRows(sf, shared)
		if err != nil {
			return "", nil, nil, fmt.Errorf("sheet %s: %w", sf.Name, err)
		}
		if len(rows) == 0 {
			continue
		}

		name := ""
		if i < len(sheetNames) {
			name = sheetNames[i]
		}
		if title == "" && name != "" {
			title = name
		}

		tables = append(tables, Table{Name: name, Rows: rows})

		var sb strings.Builder
		for j, row := range rows {
			if j > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(strings.Join(row, "\t"))
		}
		sections = append(sections, Section{
			Title: name,
			Text:  sb.String(),
			Type:  "table",
			Metadata: map[string]string{
				"rows": strconv.Itoa(len(rows)),
			},
		})
	}

	return title, sections, tables, nil
}

func sheetNumber(name string) int {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "xl/worksheets/sheet"), ".xml")
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0
	}
	return n
}

// parseSharedStrings reads the shared string table. Rich-text runs inside one
// <si> are concatenated.
func parseSharedStrings(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var shared []string
	var current strings.Builder
	var inSI, inT bool
	depth := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return nil, fmt.Errorf("xml nesting depth exceeds %d", maxXMLDepth)
			}
			switch t.Name.Local {
			case "si":
				inSI = true
				current.Reset()
			case "t":
				inT = true
			}
		case xml.CharData:
			if inSI && inT {
				current.Write(t)
			}
		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "t":
				inT = false
			case "si":
				inSI = false
				shared = append(shared, current.String())
			}
		}
	}
	return shared, nil
}

// parseSheetNames reads sheet names from workbook.xml in declaration order.
func parseSheetNames(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var names []string
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if t, ok := tok.(xml.StartElement); ok && t.Name.Local == "sheet" {
			for _, attr := range t.Attr {
				if attr.Name.Local == "name" {
					names = append(names, attr.Value)
				}
			}
		}
	}
	return names, nil
}

// parseSheetRows reads one worksheet's cell grid. Sparse rows are padded so a
// cell keeps its spreadsheet column index.
func parseSheetRows(f *zip.File, shared []string) ([][]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var rows [][]string
	var row []string
	var cellType, cellRef string
	var value strings.Builder
	var inCell, inValue bool
	depth := 0

	flushCell := func() {
		col := columnIndex(cellRef)
		for len(row) < col {
			row = append(row, "")
		}
		text := value.String()
		if cellType == "s" {
			if idx, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && idx >= 0 && idx < len(shared) {
				text = shared[idx]
			}
		}
		row = append(row, strings.TrimSpace(text))
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return nil, fmt.Errorf("xml nesting depth exceeds %d", maxXMLDepth)
			}
			switch t.Name.Local {
			case "row":
				row = nil
			case "c":
				inCell = true
				value.Reset()
				cellType = ""
				cellRef = ""
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "t":
						cellType = attr.Value
					case "r":
						cellRef = attr.Value
					}
				}
			case "v", "t":
				if inCell {
					inValue = true
				}
			}
		case xml.CharData:
			if inValue {
				value.Write(t)
			}
		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "v", "t":
				inValue = false
			case "c":
				if inCell {
					flushCell()
					inCell = false
				}
			case "row":
				if len(row) > 0 {
					rows = append(rows, row)
				}
			}
		}
	}
	return rows, nil
}

// columnIndex converts the letters of a cell reference to a 0-based column
// index: A1 → 0, B7 → 1, AA3 → 26. Unknown refs append at the current end.
func columnIndex(ref string) int {
	col := 0
	seen := false
	for _, r := range ref {
		if r >= 'A' && r <= 'Z' {
			col = col*26 + int(r-'A') + 1
			seen = true
		} else {
			break
		}
	}
	if !seen {
		return 0
	}
	return col - 1
}
