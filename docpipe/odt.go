package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// extractODT reads content.xml out of the .odt archive. OpenDocument
// marks structure directly: text:h carries an outline-level attribute
// and text:list wraps list paragraphs.
func extractODT(path string) (string, []Section, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("open zip: %w", err)
	}
	defer archive.Close()

	rc, err := archive.Open("content.xml")
	if err != nil {
		return "", nil, fmt.Errorf("content.xml: %w", err)
	}
	defer rc.Close()

	var (
		doc     docBuilder
		dec     = xml.NewDecoder(rc)
		buf     strings.Builder
		level   int
		capture bool // inside a text:h or text:p
		heading bool // the captured element is a text:h
		listing bool // inside a text:list
		depth   int
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
			case "h":
				capture, heading = true, true
				buf.Reset()
				level = 1
				if n, err := strconv.Atoi(xmlAttr(el, "outline-level")); err == nil {
					level = n
				}
			case "p":
				capture, heading = true, false
				buf.Reset()
			case "list":
				listing = true
			}
		case xml.CharData:
			if capture {
				buf.Write(el)
			}
		case xml.EndElement:
			depth--
			switch el.Name.Local {
			case "h":
				if capture && heading {
					capture = false
					doc.heading(buf.String(), level)
				}
			case "p":
				if capture && !heading {
					capture = false
					typ := "paragraph"
					if listing {
						typ = "list"
					}
					doc.block(buf.String(), typ)
				}
			case "list":
				listing = false
			}
		}
	}
	return doc.title, doc.sections, nil
}
