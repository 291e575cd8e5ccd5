package docpipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// extractPDF pulls text out of a PDF page by page, one section per
// non-empty page, and grades the result so callers can route scanned or
// garbled files to OCR instead of treating them as text.
func extractPDF(path string) (string, []Section, *ExtractionQuality, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return "", nil, nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	var (
		title    string
		sections []Section
		all      strings.Builder
		chars    int
	)
	for page := 1; page <= pctx.PageCount; page++ {
		text := pageText(pctx, page)
		if text == "" {
			continue
		}
		chars += utf8.RuneCountInString(text)
		if title == "" {
			title = firstLine(text)
		}
		sections = append(sections, Section{
			Text:     text,
			Type:     "page",
			Metadata: map[string]string{"page": strconv.Itoa(page)},
		})
		if all.Len() > 0 {
			all.WriteByte('\n')
		}
		all.WriteString(text)
	}
	if len(sections) == 0 {
		return "", nil, nil, fmt.Errorf("no text content found in PDF")
	}

	full := all.String()
	q := &ExtractionQuality{
		PageCount:       pctx.PageCount,
		CharsPerPage:    float64(chars) / float64(pctx.PageCount),
		PrintableRatio:  computePrintableRatio(full),
		WordlikeRatio:   computeWordlikeRatio(full),
		HasImageStreams: hasImageXObjects(pctx),
		VisualRefCount:  countVisualRefs(full),
	}
	return title, sections, q, nil
}

// pageText decodes one page's content stream. Unreadable pages count as
// empty rather than failing the whole document.
func pageText(pctx *model.Context, page int) string {
	r, err := pdfcpu.ExtractPageContent(pctx, page)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return streamText(data)
}

// hasImageXObjects reports whether the file carries image XObjects. The
// optimizer's per-page index is consulted first; the xref table scan
// catches images the optimizer did not account to a page.
func hasImageXObjects(pctx *model.Context) bool {
	if pctx.Optimize != nil {
		for page := 1; page <= pctx.PageCount; page++ {
			if len(pdfcpu.ImageObjNrs(pctx, page)) > 0 {
				return true
			}
		}
	}
	for _, entry := range pctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, ok := subtype.(types.Name); ok && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfLiteralRe matches parenthesized PDF string literals.
var pdfLiteralRe = regexp.MustCompile(`\(([^)]*)\)`)

// streamText scans content stream lines for the text-showing operators.
// The suffix tests are disjoint (each operator ends in a distinct byte),
// so at most one branch fires per line.
func streamText(data []byte) string {
	var sb strings.Builder
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case len(line) == 0:

		// Tj and TJ show text at the current position.
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			writeLiterals(&sb, line, "")

		// ' moves to the next line before showing.
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			writeLiterals(&sb, line, "\n")

		// Td and TD reposition; approximate with a word break.
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}

		// T* starts a fresh line.
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}
	return cleanPDFText(sb.String())
}

// writeLiterals decodes every string literal on the line, prefixing each
// non-empty one with sep.
func writeLiterals(sb *strings.Builder, line []byte, sep string) {
	for _, m := range pdfLiteralRe.FindAllSubmatch(line, -1) {
		text := decodePDFString(m[1])
		if text == "" {
			continue
		}
		sb.WriteString(sep)
		sb.WriteString(text)
	}
}

// decodePDFString resolves backslash escapes, including up to three
// octal digits.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 == len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch c = raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(c)
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				break
			}
			val := int(c - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanPDFText collapses whitespace runs to single spaces and drops
// unprintable runes.
func cleanPDFText(text string) string {
	var sb strings.Builder
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = sb.Len() > 0
		case unicode.IsPrint(r):
			if pendingSpace {
				sb.WriteByte(' ')
				pendingSpace = false
			}
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
