package docpipe

import (
	"os"
	"strings"
)

// extractText extracts content from a plain text file. Line structure is
// preserved: downstream extraction reads flyers and venue lists line by
// line, so only whitespace inside each line is collapsed.
func extractText(path string) (string, []Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	text := normalizeLines(string(data))
	if text == "" {
		return "", nil, nil
	}

	return firstLine(text), []Section{{
		Text: text,
		Type: "paragraph",
	}}, nil
}

// extractMarkdown splits a Markdown file into heading and paragraph
// sections on ATX headings and blank lines.
func extractMarkdown(path string) (string, []Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	var (
		doc  docBuilder
		para strings.Builder
	)
	flush := func() {
		doc.block(para.String(), "paragraph")
		para.Reset()
	}

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)

		if level, text := mdHeading(trimmed); level > 0 {
			flush()
			doc.heading(text, level)
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		// A markdown paragraph is hard-wrapped prose; keep each source
		// line as its own line so list-like paragraphs stay scannable.
		if para.Len() > 0 {
			para.WriteByte('\n')
		}
		para.WriteString(trimmed)
	}
	flush()

	title := doc.title
	if title == "" && len(doc.sections) > 0 {
		title = firstLine(doc.sections[0].Text)
	}
	return title, doc.sections, nil
}

// mdHeading parses an ATX heading. Returns level 0 for non-headings;
// trailing closing hashes are stripped.
func mdHeading(line string) (int, string) {
	if !strings.HasPrefix(line, "#") {
		return 0, ""
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	text := strings.TrimSpace(line[level:])
	text = strings.TrimSpace(strings.TrimRight(text, "#"))
	if level > 6 {
		level = 6
	}
	return level, text
}

// normalizeLines collapses runs of spaces and tabs inside each line and
// squeezes consecutive blank lines down to one, keeping the line breaks
// themselves.
func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			continue
		}
		if blank > 0 && len(out) > 0 {
			out = append(out, "")
		}
		blank = 0
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
