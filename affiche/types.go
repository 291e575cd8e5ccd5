// Package affiche assembles the event/venue catalog service.
//
// Collectors land heterogeneous raw records through the intake surfaces
// (HTTP, MCP, document ingest). The pipeline normalizes each batch through
// per-source normalizers and loads the results into an FTS5-searchable
// SQLite catalog, deduplicating on URL. A visibility-timeout lease keeps at
// most one batch run in flight across every trigger: the interval ticker,
// the intake watcher, HTTP and MCP.
package affiche

import (
	"github.com/hazyhaar/affiche/affiche/internal/pipeline"
	"github.com/hazyhaar/affiche/affiche/internal/store"
)

// Re-export store and pipeline types for the public API.
type (
	Event        = store.Event
	RawRecord    = store.RawRecord
	Run          = store.Run
	SearchQuery  = store.SearchQuery
	Outcome      = pipeline.Outcome
	SourceCounts = pipeline.SourceCounts
)
