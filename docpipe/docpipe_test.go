package docpipe

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeZipFile writes a single-entry zip archive, the container shape of
// docx and odt files.
func writeZipFile(t *testing.T, path, entry, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	fw, err := w.Create(entry)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func extractFile(t *testing.T, path string) *Document {
	t.Helper()
	pipe := New(Config{})
	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract %s: %v", filepath.Base(path), err)
	}
	return doc
}

func TestDetect(t *testing.T) {
	pipe := New(Config{})

	byExt := map[string]Format{
		"programme.docx": FormatDocx,
		"programme.odt":  FormatODT,
		"flyer.pdf":      FormatPDF,
		"listings.xlsx":  FormatXLSX,
		"venues.csv":     FormatCSV,
		"notes.md":       FormatMD,
		"notes.markdown": FormatMD,
		"venues.txt":     FormatTXT,
		"page.html":      FormatHTML,
		"page.htm":       FormatHTML,
	}
	for path, want := range byExt {
		got, err := pipe.Detect(path)
		if err != nil {
			t.Errorf("Detect(%q): %v", path, err)
			continue
		}
		if got != want {
			t.Errorf("Detect(%q) = %q, want %q", path, got, want)
		}
	}

	if _, err := pipe.Detect("file.xyz"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	os.WriteFile(path, []byte("The Station  Inn\n402 12th Ave S\n\n\n  Exit/In  \n2208 Elliston Pl\n"), 0644)

	doc := extractFile(t, path)
	if doc.Format != FormatTXT {
		t.Fatalf("expected txt format, got %s", doc.Format)
	}
	// Line breaks must survive: downstream extraction is line-oriented.
	// Intra-line runs collapse, consecutive blanks squeeze to one.
	want := "The Station Inn\n402 12th Ave S\n\nExit/In\n2208 Elliston Pl"
	if doc.RawText != want {
		t.Fatalf("raw text: got %q, want %q", doc.RawText, want)
	}
	if doc.Title != "The Station Inn" {
		t.Fatalf("title: got %q", doc.Title)
	}
}

func TestExtractMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "season.md")
	content := `# Fall Season Announcement

Twelve shows across three stages, September through November.

## Ticketing

Season passes go on sale August 1 at the box office.
`
	os.WriteFile(path, []byte(content), 0644)

	doc := extractFile(t, path)
	if doc.Title != "Fall Season Announcement" {
		t.Fatalf("title: got %q", doc.Title)
	}
	if doc.Format != FormatMD {
		t.Fatalf("expected md format, got %s", doc.Format)
	}

	var headings, paragraphs []Section
	for _, s := range doc.Sections {
		switch s.Type {
		case "heading":
			headings = append(headings, s)
		case "paragraph":
			paragraphs = append(paragraphs, s)
		}
	}
	if len(headings) != 2 || len(paragraphs) != 2 {
		t.Fatalf("sections: %d headings, %d paragraphs", len(headings), len(paragraphs))
	}
	if headings[1].Level != 2 || headings[1].Title != "Ticketing" {
		t.Errorf("second heading: %+v", headings[1])
	}
}

func TestExtractDocx(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "programme.docx")

	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Winter Programme</w:t></w:r></w:p>
<w:p><w:r><w:t>Doors open one hour before each show.</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Main Hall</w:t></w:r></w:p>
<w:p><w:r><w:t>Chamber orchestra, </w:t></w:r><w:r><w:t>December 12.</w:t></w:r></w:p>
</w:body>
</w:document>`
	writeZipFile(t, path, "word/document.xml", docXML)

	doc := extractFile(t, path)
	if doc.Title != "Winter Programme" {
		t.Fatalf("title: got %q", doc.Title)
	}
	if len(doc.Sections) != 4 {
		t.Fatalf("expected 4 sections, got %d", len(doc.Sections))
	}
	if doc.Sections[2].Type != "heading" || doc.Sections[2].Level != 2 {
		t.Errorf("third section: %+v", doc.Sections[2])
	}
	// Runs within one paragraph concatenate.
	if doc.Sections[3].Text != "Chamber orchestra, December 12." {
		t.Errorf("run concatenation: got %q", doc.Sections[3].Text)
	}
}

func TestExtractODT(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "programme.odt")

	contentXML := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
  xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
<office:body>
<office:text>
<text:h text:outline-level="1">Spring Listings</text:h>
<text:p>All shows start at 20h unless noted.</text:p>
<text:h text:outline-level="2">Outdoor Stage</text:h>
<text:p>Folk trio, May 3.</text:p>
<text:list><text:list-item><text:p>Rain date May 4</text:p></text:list-item></text:list>
</office:text>
</office:body>
</office:document-content>`
	writeZipFile(t, path, "content.xml", contentXML)

	doc := extractFile(t, path)
	if doc.Title != "Spring Listings" {
		t.Fatalf("title: got %q", doc.Title)
	}
	if len(doc.Sections) != 5 {
		t.Fatalf("expected 5 sections, got %d", len(doc.Sections))
	}
	if doc.Sections[2].Level != 2 {
		t.Errorf("outline-level: got %+v", doc.Sections[2])
	}
	if doc.Sections[4].Type != "list" {
		t.Errorf("list paragraph: got %+v", doc.Sections[4])
	}
}

// writeTestXLSX builds a minimal workbook with one sheet of events.
func writeTestXLSX(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)

	workbook := `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheets><sheet name="Events" sheetId="1" r:id="rId1" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"/></sheets>
</workbook>`
	sharedStrings := `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="4" uniqueCount="4">
<si><t>Name</t></si>
<si><t>Venue</t></si>
<si><t>Spring Fair</t></si>
<si><r><t>Riverfront</t></r><r><t> Park</t></r></si>
</sst>`
	sheet := `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2" t="s"><v>3</v></c></row>
<row r="3"><c r="A3" t="inlineStr"><is><t>Closing Gala</t></is></c><c r="B3"><v>42</v></c></row>
</sheetData>
</worksheet>`

	for name, content := range map[string]string{
		"xl/workbook.xml":          workbook,
		"xl/sharedStrings.xml":     sharedStrings,
		"xl/worksheets/sheet1.xml": sheet,
		"[Content_Types].xml":      `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
	} {
		fw, _ := w.Create(name)
		fw.Write([]byte(content))
	}
	w.Close()
	f.Close()
}

func TestExtractXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.xlsx")
	writeTestXLSX(t, path)

	doc := extractFile(t, path)
	if doc.Format != FormatXLSX {
		t.Fatalf("expected xlsx format, got %s", doc.Format)
	}
	if len(doc.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(doc.Tables))
	}

	tbl := doc.Tables[0]
	if tbl.Name != "Events" {
		t.Errorf("sheet name: got %q", tbl.Name)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(tbl.Rows))
	}
	if tbl.Rows[0][0] != "Name" || tbl.Rows[0][1] != "Venue" {
		t.Errorf("header row: got %v", tbl.Rows[0])
	}
	// Rich-text runs concatenate.
	if tbl.Rows[1][1] != "Riverfront Park" {
		t.Errorf("shared string cell: got %q", tbl.Rows[1][1])
	}
	// Inline strings and raw numbers pass through.
	if tbl.Rows[2][0] != "Closing Gala" || tbl.Rows[2][1] != "42" {
		t.Errorf("third row: got %v", tbl.Rows[2])
	}
	if !strings.Contains(doc.RawText, "Spring Fair") {
		t.Errorf("raw text missing cell content: %q", doc.RawText)
	}
}

func TestExtractXLSX_SparseRow(t *testing.T) {
	// A row that skips column A keeps cells at their spreadsheet positions.
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.xlsx")
	sheet := `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="1"><c r="B1" t="inlineStr"><is><t>only-b</t></is></c></row>
</sheetData>
</worksheet>`
	writeZipFile(t, path, "xl/worksheets/sheet1.xml", sheet)

	_, _, tables, err := extractXLSX(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 1 || len(tables[0].Rows) != 1 {
		t.Fatalf("unexpected tables: %+v", tables)
	}
	row := tables[0].Rows[0]
	if len(row) != 2 || row[0] != "" || row[1] != "only-b" {
		t.Fatalf("sparse row: got %v", row)
	}
}

func TestExtractCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "venues.csv")
	os.WriteFile(path, []byte("name,address,phone\nAcme Hall,123 Main St,615-555-0100\nThe Annex,9 Oak Ave,615-555-0101\n"), 0644)

	doc := extractFile(t, path)
	if doc.Format != FormatCSV {
		t.Fatalf("expected csv format, got %s", doc.Format)
	}
	if len(doc.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(doc.Tables))
	}
	rows := doc.Tables[0].Rows
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1][0] != "Acme Hall" {
		t.Errorf("first data cell: got %q", rows[1][0])
	}
}

func TestExtractCSV_SniffsSemicolon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "semi.csv")
	os.WriteFile(path, []byte("name;city\nBluebird Cafe;Nashville\n"), 0644)

	_, _, tables, err := extractCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	if len(tables[0].Rows[0]) != 2 || tables[0].Rows[1][1] != "Nashville" {
		t.Fatalf("semicolon rows: got %v", tables[0].Rows)
	}
}

func TestExtractHTML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "venue.html")
	html := `<!DOCTYPE html>
<html><head><title>Mercy Lounge</title></head>
<body>
<article>
<h1>This Week</h1>
<p>Friday brings a double bill with doors at seven, and Saturday closes the
month with the residency showcase that has sold out every night so far.</p>
</article>
</body></html>`
	os.WriteFile(path, []byte(html), 0644)

	doc := extractFile(t, path)
	if doc.Title != "Mercy Lounge" {
		t.Fatalf("title: got %q", doc.Title)
	}
	if !strings.Contains(doc.RawText, "residency showcase") {
		t.Fatalf("raw text: got %q", doc.RawText)
	}
	if !strings.Contains(doc.Markdown, "This Week") {
		t.Fatalf("markdown rendering: got %q", doc.Markdown)
	}
}

func TestExtractHTML_Tables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.html")
	html := `<!DOCTYPE html>
<html><head><title>Listings</title></head>
<body>
<table>
<caption>Upcoming Shows</caption>
<tr><th>Event</th><th>Venue</th></tr>
<tr><td>Opry Night</td><td>Grand Ole Opry</td></tr>
</table>
</body></html>`
	os.WriteFile(path, []byte(html), 0644)

	doc := extractFile(t, path)
	if len(doc.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(doc.Tables))
	}
	tbl := doc.Tables[0]
	if tbl.Name != "Upcoming Shows" {
		t.Errorf("caption: got %q", tbl.Name)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(tbl.Rows))
	}
	if tbl.Rows[1][0] != "Opry Night" || tbl.Rows[1][1] != "Grand Ole Opry" {
		t.Errorf("data row: got %v", tbl.Rows[1])
	}
}

func TestSupportedFormats(t *testing.T) {
	formats := SupportedFormats()
	if len(formats) != 8 {
		t.Fatalf("expected 8 formats, got %d: %v", len(formats), formats)
	}
}

func TestHTML_HiddenTextExcluded(t *testing.T) {
	// WHAT: Text styled invisible is pruned from both raw text and markdown.
	// WHY: Venue pages stuff hidden spans with keywords; extraction must
	// carry only what a visitor actually sees.
	styles := []struct{ name, style string }{
		{"display_none", "display:none"},
		{"visibility_hidden", "visibility:hidden"},
		{"font_size_zero", "font-size:0px"},
		{"opacity_zero", "opacity:0"},
	}
	for _, tt := range styles {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "page.html")
			html := `<!DOCTYPE html><html><body>
<p>Jazz quartet Friday at nine</p>
<span style="` + tt.style + `">stuffed keywords</span>
</body></html>`
			os.WriteFile(path, []byte(html), 0644)

			doc := extractFile(t, path)
			if strings.Contains(doc.RawText, "stuffed keywords") {
				t.Errorf("%s text leaked into raw text", tt.style)
			}
			if strings.Contains(doc.Markdown, "stuffed keywords") {
				t.Errorf("%s text leaked into markdown", tt.style)
			}
			if !strings.Contains(doc.RawText, "Jazz quartet") {
				t.Error("visible text missing")
			}
		})
	}
}

func TestHTML_StyledVisibleKept(t *testing.T) {
	// WHAT: Styling that does not hide content is not over-stripped.
	// WHY: Most venue pages color and size everything.
	dir := t.TempDir()
	path := filepath.Join(dir, "styled.html")
	html := `<!DOCTYPE html><html><body>
<h1>Tonight</h1>
<p style="color:red">Doors at eight</p>
<p>Support act to be announced</p>
</body></html>`
	os.WriteFile(path, []byte(html), 0644)

	doc := extractFile(t, path)
	for _, want := range []string{"Doors at eight", "Support act"} {
		if !strings.Contains(doc.RawText, want) {
			t.Errorf("raw text missing %q: %q", want, doc.RawText)
		}
	}
}

// nestedXML wraps content in depth repetitions of the open/close tags.
func nestedXML(prolog, openTag, closeTag, content string, depth int) string {
	var b strings.Builder
	b.WriteString(prolog)
	for i := 0; i < depth; i++ {
		b.WriteString(openTag)
	}
	b.WriteString(content)
	for i := 0; i < depth; i++ {
		b.WriteString(closeTag)
	}
	return b.String()
}

func TestXMLBombRejected(t *testing.T) {
	// WHAT: Nesting past the depth limit fails extraction for both zip
	// XML formats.
	// WHY: Intake accepts files from the open web; a crafted document must
	// not pin the parser.
	t.Run("docx", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bomb.docx")
		body := nestedXML(
			`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`,
			"<w:p>", "</w:p>", "<w:r><w:t>deep</w:t></w:r>", 300,
		) + "</w:body></w:document>"
		writeZipFile(t, path, "word/document.xml", body)

		_, _, err := extractDocx(path)
		if err == nil || !strings.Contains(err.Error(), "nesting depth") {
			t.Fatalf("expected nesting depth error, got: %v", err)
		}
	})

	t.Run("odt", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bomb.odt")
		body := nestedXML(
			`<?xml version="1.0" encoding="UTF-8"?><office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"><office:body><office:text>`,
			"<text:p>", "</text:p>", "deep text", 300,
		) + "</office:text></office:body></office:document-content>"
		writeZipFile(t, path, "content.xml", body)

		_, _, err := extractODT(path)
		if err == nil || !strings.Contains(err.Error(), "nesting depth") {
			t.Fatalf("expected nesting depth error, got: %v", err)
		}
	})
}
