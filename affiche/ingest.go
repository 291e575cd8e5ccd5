package affiche

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/affiche/docpipe"
	"github.com/hazyhaar/affiche/horosafe"
)

// documentPayload mirrors the payload shape the document normalizer reads.
// Text documents carry Text; tabular ones carry Headers plus Rows.
type documentPayload struct {
	Text         string     `json:"text,omitempty"`
	Headers      []string   `json:"headers,omitempty"`
	Rows         [][]string `json:"rows,omitempty"`
	Sheet        string     `json:"sheet,omitempty"`
	OriginalPath string     `json:"originalPath"`
}

// IngestDocument reads one uploaded document and stores its content as raw
// records for the next batch: one text record for prose formats, one record
// per table or worksheet for cell grids. name resolves against
// Config.IngestDir and may not escape it.
func (svc *Service) IngestDocument(ctx context.Context, name string) (int, error) {
	path, err := horosafe.SafePath(svc.config.IngestDir, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return svc.ingestFile(ctx, path, name)
}

// IngestDir walks a directory and ingests every supported document under
// it. Unsupported extensions are skipped; per-file extraction failures are
// logged and do not stop the walk. Returns the number of raw records
// stored. Intended for the CLI intake mode, where the operator names the
// root.
func (svc *Service) IngestDir(ctx context.Context, dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if _, err := svc.docs.Detect(path); err != nil {
			svc.logger.Debug("skipping unsupported file", "path", path)
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		n, err := svc.ingestFile(ctx, path, rel)
		if err != nil {
			svc.logger.Warn("document ingest failed", "path", path, "error", err)
			return nil
		}
		total += n
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("walk %s: %w", dir, err)
	}
	return total, nil
}

// ingestFile extracts one document and stores its raw records. original is
// the caller-relative path persisted in the payloads, so synthetic URLs and
// diagnostics stay stable across hosts.
func (svc *Service) ingestFile(ctx context.Context, path, original string) (int, error) {
	doc, err := svc.docs.Extract(ctx, path)
	if err != nil {
		return 0, err
	}
	tag := "document:" + string(doc.Format)

	var payloads []documentPayload

	// CSV and XLSX render their cells into RawText too; storing both
	// would extract every row twice.
	tabular := doc.Format == docpipe.FormatCSV || doc.Format == docpipe.FormatXLSX
	if !tabular && strings.TrimSpace(doc.RawText) != "" {
		payloads = append(payloads, documentPayload{
			Text:         doc.RawText,
			OriginalPath: original,
		})
	}
	for _, tbl := range doc.Tables {
		if len(tbl.Rows) < 2 {
			continue
		}
		payloads = append(payloads, documentPayload{
			Headers:      tbl.Rows[0],
			Rows:         tbl.Rows[1:],
			Sheet:        tbl.Name,
			OriginalPath: original,
		})
	}
	if len(payloads) == 0 {
		return 0, fmt.Errorf("%w: no extractable content in %s", ErrInvalidInput, original)
	}

	stored := 0
	for _, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return stored, fmt.Errorf("encode payload: %w", err)
		}
		rec := &RawRecord{SourceTag: tag, Payload: data}
		if err := svc.store.InsertRawRecord(ctx, rec); err != nil {
			return stored, err
		}
		stored++
	}
	svc.logger.Info("document ingested",
		"path", original, "format", doc.Format, "records", stored)
	return stored, nil
}
