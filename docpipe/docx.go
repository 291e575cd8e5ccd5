package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// maxXMLDepth bounds element nesting in zip-packaged XML documents.
// Deeper input is rejected as a malformed or hostile file.
const maxXMLDepth = 256

// extractDocx reads word/document.xml out of the .docx archive and walks
// its paragraphs. Word marks headings only through the pStyle name, so
// style is the sole structural signal; text runs inside a paragraph are
// concatenated.
func extractDocx(path string) (string, []Section, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("open zip: %w", err)
	}
	defer archive.Close()

	rc, err := archive.Open("word/document.xml")
	if err != nil {
		return "", nil, fmt.Errorf("word/document.xml: %w", err)
	}
	defer rc.Close()

	var (
		doc    docBuilder
		dec    = xml.NewDecoder(rc)
		buf    strings.Builder
		style  string
		inPara bool
		depth  int
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return "", nil, fmt.Errorf("xml nesting depth exceeds %d", maxXMLDepth)
			}
			switch el.Name.Local {
			case "p":
				inPara = true
				style = ""
				buf.Reset()
			case "pStyle":
				if inPara {
					style = xmlAttr(el, "val")
				}
			}
		case xml.CharData:
			if inPara {
				buf.Write(el)
			}
		case xml.EndElement:
			depth--
			if el.Name.Local != "p" || !inPara {
				continue
			}
			inPara = false
			if lvl := docxHeadingLevel(style); lvl > 0 {
				doc.heading(buf.String(), lvl)
			} else {
				doc.block(buf.String(), "paragraph")
			}
		}
	}
	return doc.title, doc.sections, nil
}

// docxHeadingLevel maps a paragraph style name to a heading level, 0 for
// body styles. Localized names (Titre1, Überschrift1) show up in files
// saved by non-English Word installs.
func docxHeadingLevel(style string) int {
	s := strings.ToLower(style)
	switch s {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
