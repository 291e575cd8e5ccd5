// Package docpipe extracts structured text from document files.
//
// Formats: docx and odt (zip-packaged XML), pdf (pdfcpu cross-reference
// and stream decoding), xlsx (shared strings plus per-sheet cell grids),
// csv (separator sniffing), md, txt, and html (visible-DOM sections,
// table grids, sanitized markdown).
//
// One Pipeline serves all callers:
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.Extract(ctx, "brochures/festival.docx")
package docpipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// formatOf maps a lowercased file extension to its format.
var formatOf = map[string]Format{
	".docx":     FormatDocx,
	".odt":      FormatODT,
	".pdf":      FormatPDF,
	".xlsx":     FormatXLSX,
	".csv":      FormatCSV,
	".md":       FormatMD,
	".markdown": FormatMD,
	".txt":      FormatTXT,
	".text":     FormatTXT,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// Pipeline is the document extraction engine. One instance serves
// concurrent callers; the sanitizer and markdown converter it carries
// take no per-call state.
type Pipeline struct {
	cfg      Config
	logger   *slog.Logger
	sanitize *bluemonday.Policy
	mdConv   *converter.Converter
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:      cfg,
		logger:   cfg.Logger,
		sanitize: bluemonday.UGCPolicy(),
		mdConv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Detect returns the format implied by the file extension.
func (p *Pipeline) Detect(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := formatOf[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %q", ext)
}

// checkSize rejects oversized files before any parsing starts.
func (p *Pipeline) checkSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if size := info.Size(); size > p.cfg.MaxFileSize {
		return fmt.Errorf("file too large: %d bytes (max %d)", size, p.cfg.MaxFileSize)
	}
	return nil
}

// Extract parses a document into sections, tables, and derived text.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Document, error) {
	format, err := p.Detect(path)
	if err != nil {
		return nil, err
	}
	if err := p.checkSize(path); err != nil {
		return nil, err
	}

	p.logger.Debug("document extract", "path", path, "format", format)

	doc := &Document{Path: path, Format: format}
	switch format {
	case FormatDocx:
		doc.Title, doc.Sections, err = extractDocx(path)
	case FormatODT:
		doc.Title, doc.Sections, err = extractODT(path)
	case FormatPDF:
		doc.Title, doc.Sections, doc.Quality, err = extractPDF(path)
	case FormatXLSX:
		doc.Title, doc.Sections, doc.Tables, err = extractXLSX(path)
	case FormatCSV:
		doc.Title, doc.Sections, doc.Tables, err = extractCSV(path)
	case FormatMD:
		doc.Title, doc.Sections, err = extractMarkdown(path)
	case FormatTXT:
		doc.Title, doc.Sections, err = extractText(path)
	case FormatHTML:
		doc.Title, doc.Sections, doc.Tables, doc.Markdown, err = p.extractHTMLFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s as %s: %w", path, format, err)
	}

	doc.RawText = joinSections(doc.Sections)
	return doc, nil
}

// SupportedFormats lists the extensions Extract accepts.
func SupportedFormats() []string {
	return []string{"docx", "odt", "pdf", "xlsx", "csv", "md", "txt", "html"}
}
