package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/affiche/affiche/internal/extract"
	"github.com/hazyhaar/affiche/affiche/internal/llmextract"
	"github.com/hazyhaar/affiche/affiche/internal/store"
	"github.com/hazyhaar/affiche/affiche/internal/taxonomy"
)

// diagnosticCategory marks the synthetic record left behind when a
// document defeats every extractor.
const diagnosticCategory = "document_extracted"

// documentNormalizer handles uploaded document content, the "document:"
// tag family. Text payloads run the line extractor and table payloads the
// column mapper; when plain extraction of a text finds nothing and a
// text-understanding client is configured, the text goes there. That
// fallback fails closed into a single diagnostic record so an upload never
// vanishes silently. Documents are never authoritative: the classifier
// assigns category and genre regardless of what the extraction captured.
type documentNormalizer struct {
	extractor  *extract.Extractor
	classifier *taxonomy.Classifier
	llm        *llmextract.Client
	log        *slog.Logger
}

type documentPayload struct {
	Text         string     `json:"text"`
	Headers      []string   `json:"headers"`
	Rows         [][]string `json:"rows"`
	Sheet        string     `json:"sheet"`
	OriginalPath string     `json:"originalPath"`
}

func (n *documentNormalizer) Normalize(ctx context.Context, rec *store.RawRecord) ([]*store.Event, error) {
	var p documentPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s record %d: %w", rec.SourceTag, rec.ID, err)
	}
	ext := strings.TrimPrefix(rec.SourceTag, "document:")
	label := "document_upload_" + ext

	var items []extract.CandidateItem
	switch {
	case len(p.Headers) > 0:
		items = n.extractor.MapTable(p.Headers, p.Rows)
	case strings.TrimSpace(p.Text) != "":
		items = n.extractor.ScanText(p.Text)
		if len(items) == 0 && n.llm != nil {
			llmItems, err := n.llm.Extract(ctx, p.Text)
			if err != nil {
				n.log.Warn("text understanding failed",
					"source", rec.SourceTag, "raw_id", rec.ID, "error", err)
				return n.diagnostic(rec, ext, label, p.OriginalPath), nil
			}
			items = candidateItems(llmItems)
		}
	default:
		return nil, fmt.Errorf("%s record %d: empty document payload", rec.SourceTag, rec.ID)
	}

	promoted := n.extractor.Promote(items, ext, p.OriginalPath)
	events := make([]*store.Event, 0, len(promoted))
	for _, it := range promoted {
		venue := CleanVenueName(it.VenueName)
		category, genre := n.classifier.Classify(it.Name, it.Description, venue)
		ev := &store.Event{
			Name:         it.Name,
			URL:          it.URL,
			EventDate:    it.EventDate,
			VenueName:    venue,
			VenueAddress: it.VenueAddress,
			VenueCity:    it.VenueCity,
			Description:  it.Description,
			Source:       label,
			Category:     category,
			Genre:        genre,
		}
		ev.SearchText = SearchText(ev.Name, ev.VenueName, ev.VenueAddress, ev.Description)
		events = append(events, ev)
	}
	return events, nil
}

// diagnostic builds the single failed-parse record for a document whose
// text defeated both extractors, keeping the upload visible in the
// catalog. The synthetic URL makes re-ingesting the same file collapse to
// one row.
func (n *documentNormalizer) diagnostic(rec *store.RawRecord, ext, label, path string) []*store.Event {
	base := filepath.Base(path)
	if base == "." || base == "/" {
		base = rec.SourceTag
	}
	item := extract.CandidateItem{
		Name:        "Unparsed document: " + base,
		Description: "No items could be recognized in this document.",
	}
	events := make([]*store.Event, 0, 1)
	for _, it := range n.extractor.Promote([]extract.CandidateItem{item}, ext, path) {
		ev := &store.Event{
			Name:        it.Name,
			URL:         it.URL,
			VenueName:   it.VenueName,
			VenueCity:   it.VenueCity,
			Description: it.Description,
			Source:      label,
			Category:    diagnosticCategory,
		}
		ev.SearchText = SearchText(ev.Name, ev.VenueName, ev.VenueAddress, ev.Description)
		events = append(events, ev)
	}
	return events
}

// candidateItems converts capability-boundary output to extraction items
// so both paths share the same promotion filter.
func candidateItems(items []llmextract.Item) []extract.CandidateItem {
	out := make([]extract.CandidateItem, 0, len(items))
	for _, it := range items {
		out = append(out, extract.CandidateItem{
			Name:         it.Name,
			VenueName:    it.VenueName,
			VenueAddress: it.VenueAddress,
			VenueCity:    it.VenueCity,
			EventDate:    it.EventDate,
			Phone:        it.Phone,
			URL:          it.URL,
			Category:     it.Category,
			Description:  it.Description,
		})
	}
	return out
}
