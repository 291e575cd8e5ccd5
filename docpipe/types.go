package docpipe

// Format identifies a document type.
type Format string

const (
	FormatDocx Format = "docx"
	FormatODT  Format = "odt"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatMD   Format = "md"
	FormatTXT  Format = "txt"
	FormatHTML Format = "html"
)

// Section is one structural unit of a parsed document.
type Section struct {
	Title    string            `json:"title,omitempty"`
	Level    int               `json:"level"`              // 1-6 for headings, 0 for body
	Text     string            `json:"text"`               // visible text
	Type     string            `json:"type"`               // one of: heading, paragraph, table, list, page
	Metadata map[string]string `json:"metadata,omitempty"` // extra attributes
}

// Table is one extracted cell grid: a worksheet, a CSV file, or an HTML table.
type Table struct {
	Name string     `json:"name,omitempty"` // sheet name or caption when known
	Rows [][]string `json:"rows"`
}

// Document is the result of extracting content from a file.
type Document struct {
	Path     string             `json:"path"`
	Format   Format             `json:"format"`
	Title    string             `json:"title"`
	Sections []Section          `json:"sections"`
	Tables   []Table            `json:"tables,omitempty"`   // cell grids from tabular formats
	RawText  string             `json:"raw_text"`           // section text, newline-joined
	Markdown string             `json:"markdown,omitempty"` // sanitized markdown rendering (html sources)
	Quality  *ExtractionQuality `json:"quality,omitempty"`  // PDF extraction quality metrics
}
