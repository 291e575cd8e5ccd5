package docpipe

import (
	"bytes"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Inline styles that render an element invisible. Venue pages hide
// tracking text and keyword stuffing this way; none of it belongs in
// the catalog.
var hiddenStyles = compileInsensitive(
	`display\s*:\s*none`,
	`visibility\s*:\s*hidden`,
	`font-size\s*:\s*0[^1-9]`,
	`opacity\s*:\s*0[^.]`,
	`position\s*:\s*absolute[^;]*-\d{4,}`,
)

func compileInsensitive(exprs ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		compiled[i] = regexp.MustCompile(`(?i)` + expr)
	}
	return compiled
}

func hasHiddenStyle(n *html.Node) bool {
	style := attrVal(n, "style")
	if style == "" {
		return false
	}
	for _, pat := range hiddenStyles {
		if pat.MatchString(style) {
			return true
		}
	}
	return false
}

func attrVal(n *html.Node, key string) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// chrome reports structural elements that never carry listing content.
func chrome(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header:
		return true
	}
	return false
}

// invisible reports subtrees that contribute no visible text: scripts,
// styles and anything styled to be hidden.
func invisible(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript:
		return true
	}
	return hasHiddenStyle(n)
}

// extractHTMLFile extracts structured content from an HTML file: sections from
// the visible DOM, a cell grid per table, and a sanitized markdown rendering.
func (p *Pipeline) extractHTMLFile(path string) (string, []Section, []Table, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, nil, "", err
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, nil, "", err
	}

	var sections []Section
	extractHTMLNodes(doc, &sections)
	if len(sections) == 0 {
		// Pages without any recognized block still yield their raw text.
		if text := collectHTMLText(doc); text != "" {
			sections = []Section{{Text: text, Type: "paragraph"}}
		}
	}

	markdown, err := p.renderMarkdown(doc)
	if err != nil {
		// Sections still carry the content, so a conversion failure only
		// costs the markdown rendering.
		p.logger.Warn("markdown conversion failed", "path", path, "error", err)
		markdown = ""
	}

	return findHTMLTitle(doc), sections, extractHTMLTables(doc), markdown, nil
}

// renderMarkdown prunes hidden and boilerplate nodes, sanitizes the remaining
// markup and converts it to markdown.
func (p *Pipeline) renderMarkdown(doc *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, pruneHTML(doc)); err != nil {
		return "", err
	}
	return p.mdConv.ConvertString(p.sanitize.Sanitize(buf.String()))
}

// pruneHTML returns a copy of the tree without chrome subtrees and without
// nodes styled invisible.
func pruneHTML(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (chrome(c.DataAtom) || hasHiddenStyle(c)) {
			continue
		}
		clone.AppendChild(pruneHTML(c))
	}
	return clone
}

// findHTMLTitle returns the trimmed <title> text, or "".
func findHTMLTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findHTMLTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// blockType maps container elements to the section type they produce.
var blockType = map[atom.Atom]string{
	atom.P:     "paragraph",
	atom.Table: "table",
	atom.Ul:    "list",
	atom.Ol:    "list",
}

// headingLevel returns 1 through 6 for h1..h6 nodes and 0 for anything else.
func headingLevel(n *html.Node) int {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return int(n.Data[1] - '0')
	}
	return 0
}

// extractHTMLNodes walks the visible DOM and emits one section per heading
// or content block. Blocks are terminal: their children are flattened into
// the block's text instead of producing sections of their own.
func extractHTMLNodes(n *html.Node, sections *[]Section) {
	if n.Type == html.ElementNode {
		if chrome(n.DataAtom) || hasHiddenStyle(n) {
			return
		}
		if level := headingLevel(n); level > 0 {
			if text := collectHTMLText(n); text != "" {
				*sections = append(*sections, Section{
					Title: text,
					Level: level,
					Text:  text,
					Type:  "heading",
				})
			}
			return
		}
		if kind, ok := blockType[n.DataAtom]; ok {
			if text := collectHTMLText(n); text != "" {
				*sections = append(*sections, Section{Text: text, Type: kind})
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractHTMLNodes(c, sections)
	}
}

// extractHTMLTables collects one cell grid per visible table.
func extractHTMLTables(root *html.Node) []Table {
	var tables []Table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if invisible(n) {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			if rows := htmlTableRows(n); len(rows) > 0 {
				tables = append(tables, Table{Name: htmlTableCaption(n), Rows: rows})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return tables
}

func htmlTableCaption(table *html.Node) string {
	for c := table.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Caption {
			return collectHTMLText(c)
		}
	}
	return ""
}

// htmlTableRows flattens tr/td cells into rows of text. Nested tables
// contribute their text to the enclosing cell rather than separate rows.
func htmlTableRows(table *html.Node) [][]string {
	var rows [][]string
	var findRows func(*html.Node)
	findRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, collectHTMLText(c))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findRows(c)
		}
	}
	findRows(table)
	return rows
}

// collectHTMLText flattens the visible text of a subtree into a single
// space-separated string.
func collectHTMLText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if invisible(n) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}
