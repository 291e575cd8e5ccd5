package affiche

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// setupIngestService builds a Service whose ingest root is a fresh temp
// dir, returned alongside it.
func setupIngestService(t *testing.T) (*Service, string) {
	t.Helper()
	svc := setupTestService(t)
	dir := t.TempDir()
	svc.config.IngestDir = dir
	return svc, dir
}

func writeIngestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestService_IngestDocumentText(t *testing.T) {
	// WHAT: A text flyer becomes one raw record and, after a run, a
	// catalog event with the document source label.
	// WHY: Document upload is the only intake that crosses a file format
	// boundary before landing in the backlog.
	svc, dir := setupIngestService(t)
	ctx := context.Background()

	writeIngestFile(t, dir, "venues.txt",
		"Grand Ole Opry\n2804 Opryland Dr\n(615) 871-6779\nhttps://www.opry.com\n")

	stored, err := svc.IngestDocument(ctx, "venues.txt")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stored != 1 {
		t.Fatalf("stored: got %d, want 1", stored)
	}

	st, _ := svc.Status(ctx)
	if st.PendingRaw != 1 {
		t.Fatalf("pending: got %d, want 1", st.PendingRaw)
	}

	out, err := svc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Run.Inserted != 1 {
		t.Fatalf("inserted: got %d, want 1", out.Run.Inserted)
	}

	hits, err := svc.Search(ctx, SearchQuery{Text: "opry"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits: got %d, want 1", len(hits))
	}
	if hits[0].Source != "document_upload_txt" {
		t.Errorf("source: got %q", hits[0].Source)
	}
	if hits[0].URL != "https://www.opry.com" {
		t.Errorf("url: got %q", hits[0].URL)
	}
}

func TestService_IngestDocumentCSV(t *testing.T) {
	// WHAT: A CSV upload stores one tabular record whose rows all become
	// events.
	svc, dir := setupIngestService(t)
	ctx := context.Background()

	writeIngestFile(t, dir, "events.csv",
		"Event,Venue,Address,Date\n"+
			"Songwriter Night,The Bluebird Cafe,4104 Hillsboro Rd,2026-03-01\n"+
			"Jazz Brunch,Rudy's Jazz Room,809 Gleaves St,2026-03-02\n")

	stored, err := svc.IngestDocument(ctx, "events.csv")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stored != 1 {
		t.Fatalf("stored: got %d, want 1", stored)
	}

	out, err := svc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Run.Inserted != 2 {
		t.Fatalf("inserted: got %d, want 2", out.Run.Inserted)
	}

	hits, err := svc.Search(ctx, SearchQuery{Source: "document_upload_csv"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: got %d, want 2", len(hits))
	}
}

func TestService_IngestDocumentTraversal(t *testing.T) {
	// WHAT: Paths escaping the ingest root are rejected before any I/O.
	svc, dir := setupIngestService(t)

	outside := filepath.Join(filepath.Dir(dir), "outside.txt")
	os.WriteFile(outside, []byte("Secret Venue\n"), 0o644)
	defer os.Remove(outside)

	if _, err := svc.IngestDocument(context.Background(), "../outside.txt"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("traversal: got %v, want ErrInvalidInput", err)
	}
}

func TestService_IngestDocumentEmpty(t *testing.T) {
	// WHAT: A document with no extractable content fails loudly instead
	// of vanishing from the intake.
	svc, dir := setupIngestService(t)

	writeIngestFile(t, dir, "blank.txt", "   \n\n  ")

	if _, err := svc.IngestDocument(context.Background(), "blank.txt"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty doc: got %v, want ErrInvalidInput", err)
	}
}

func TestService_IngestDir(t *testing.T) {
	// WHAT: The directory walk ingests supported files, recurses, and
	// skips everything else.
	svc, _ := setupIngestService(t)
	ctx := context.Background()

	drop := t.TempDir()
	writeIngestFile(t, drop, "bluebird.txt", "Bluebird Cafe\n4104 Hillsboro Rd\nacoustic listening room\n")
	writeIngestFile(t, drop, "sub/exitin.txt", "Exit/In\n2208 Elliston Pl\n")
	writeIngestFile(t, drop, "ignore.bin", "\x00\x01\x02")

	stored, err := svc.IngestDir(ctx, drop)
	if err != nil {
		t.Fatalf("ingest dir: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored: got %d, want 2", stored)
	}

	out, err := svc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Run.Inserted != 2 {
		t.Fatalf("inserted: got %d, want 2", out.Run.Inserted)
	}
}
