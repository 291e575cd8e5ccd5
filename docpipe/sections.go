package docpipe

import (
	"encoding/xml"
	"strings"
)

// docBuilder accumulates sections while a parser walks its input.
type docBuilder struct {
	title    string
	sections []Section
}

// heading records a heading section and captures the first one seen as
// the document title. Blank text is dropped.
func (b *docBuilder) heading(text string, level int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.title == "" {
		b.title = text
	}
	b.sections = append(b.sections, Section{
		Title: text,
		Level: level,
		Text:  text,
		Type:  "heading",
	})
}

// block records a body section of the given type. Blank text is dropped.
func (b *docBuilder) block(text, typ string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.sections = append(b.sections, Section{Text: text, Type: typ})
}

// joinSections flattens section text into one newline-separated string.
// Heading sections contribute their title line as well.
func joinSections(secs []Section) string {
	var sb strings.Builder
	for i, s := range secs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if s.Title != "" {
			sb.WriteString(s.Title)
			sb.WriteByte('\n')
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// xmlAttr returns the value of the named attribute, matching on the
// local name so namespace prefixes do not matter.
func xmlAttr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
