package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hazyhaar/affiche/affiche/internal/normalize"
	"github.com/hazyhaar/affiche/affiche/internal/store"
	"github.com/hazyhaar/affiche/observability"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewStore(db)
}

func newTestRunner(t *testing.T, st *store.Store) *Runner {
	t.Helper()
	return New(st, normalize.New(normalize.Config{}), Config{Workers: 2})
}

func insertRaw(t *testing.T, st *store.Store, tag, payload string) {
	t.Helper()
	err := st.InsertRawRecord(context.Background(), &store.RawRecord{
		SourceTag: tag,
		Payload:   json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("insert raw: %v", err)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	// WHAT: A run over an empty pending set completes cleanly.
	// WHY: The scheduler fires on a timer whether or not collectors
	// delivered anything; an empty batch must not be an error.
	st := openTestStore(t)
	r := newTestRunner(t, st)

	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Run.Status != store.RunStatusDone {
		t.Errorf("status: got %q", out.Run.Status)
	}
	if out.Run.Fetched != 0 || out.Run.Retired != 0 {
		t.Errorf("counters: fetched=%d retired=%d", out.Run.Fetched, out.Run.Retired)
	}

	latest, err := st.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if latest == nil || latest.ID != out.Run.ID {
		t.Error("run row should be persisted")
	}
	if latest.FinishedAt == nil {
		t.Error("finished_at should be set")
	}
}

func TestRunBatch(t *testing.T) {
	// WHAT: One batch covering every record fate: inserted, duplicate,
	// dropped, missing normalizer, normalizer error.
	// WHY: The retire rules differ per fate: inserted, duplicate and
	// dropped records retire; missing and skipped records stay pending.
	st := openTestStore(t)
	r := newTestRunner(t, st)
	ctx := context.Background()

	insertRaw(t, st, "ticketmaster",
		`{"name": "Show A", "venue_name": "Ryman", "url": "https://example.com/a"}`)
	insertRaw(t, st, "ticketmaster",
		`{"name": "Show A again", "venue_name": "Ryman", "url": "https://example.com/a"}`)
	insertRaw(t, st, "ticketmaster", `{"venue_name": "The Ryman"}`)
	insertRaw(t, st, "yelp", `{"name": "Hattie B's"}`)
	insertRaw(t, st, "craigslist", `{"name": "whatever"}`)
	insertRaw(t, st, "underdog", `{"name": "X Show", "latitude": "downtown"}`)

	out, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	run := out.Run
	if run.Status != store.RunStatusDone {
		t.Fatalf("status: got %q (%s)", run.Status, run.Error)
	}
	if run.Fetched != 6 {
		t.Errorf("fetched: got %d", run.Fetched)
	}
	if run.Missing != 1 || run.Skipped != 1 || run.Dropped != 1 {
		t.Errorf("missing=%d skipped=%d dropped=%d", run.Missing, run.Skipped, run.Dropped)
	}
	if run.Normalized != 3 || run.Inserted != 2 || run.Duplicates != 1 || run.InsertFailed != 0 {
		t.Errorf("normalized=%d inserted=%d duplicates=%d failed=%d",
			run.Normalized, run.Inserted, run.Duplicates, run.InsertFailed)
	}
	if run.Retired != 4 {
		t.Errorf("retired: got %d", run.Retired)
	}

	// The unregistered tag and the erroring record stay pending.
	pending, err := st.CountPendingRaw(ctx)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 2 {
		t.Errorf("pending: got %d", pending)
	}

	count, err := st.CountEvents(ctx)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 2 {
		t.Errorf("events: got %d", count)
	}
	ev, err := st.GetEventByURL(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("get by url: %v", err)
	}
	if ev == nil || ev.Name != "Show A" {
		t.Error("first write for the URL should win")
	}

	tm := out.Sources["ticketmaster"]
	if tm == nil || tm.Fetched != 3 || tm.Inserted != 1 || tm.Duplicates != 1 || tm.Dropped != 1 {
		t.Errorf("ticketmaster breakdown: %+v", tm)
	}
	if c := out.Sources["craigslist"]; c == nil || c.Missing != 1 {
		t.Errorf("craigslist breakdown: %+v", c)
	}
}

func TestRunDuplicateAcrossRuns(t *testing.T) {
	// WHAT: A record whose URL already exists in the catalog counts as a
	// duplicate and its raw record still retires.
	// WHY: Re-collected records must drain from the pending set instead
	// of being re-skipped forever.
	st := openTestStore(t)
	r := newTestRunner(t, st)
	ctx := context.Background()

	insertRaw(t, st, "ticketmaster",
		`{"name": "Opening Night", "venue_name": "Ryman", "url": "https://example.com/x"}`)
	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	insertRaw(t, st, "ticketmaster",
		`{"name": "Opening Night", "venue_name": "Ryman", "url": "https://example.com/x"}`)
	out, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if out.Run.Inserted != 0 || out.Run.Duplicates != 1 || out.Run.Retired != 1 {
		t.Errorf("inserted=%d duplicates=%d retired=%d",
			out.Run.Inserted, out.Run.Duplicates, out.Run.Retired)
	}

	pending, _ := st.CountPendingRaw(ctx)
	if pending != 0 {
		t.Errorf("pending: got %d", pending)
	}
}

func TestRunInsertFailureKeepsRaw(t *testing.T) {
	// WHAT: When an event insert fails, the raw record is not retired.
	// WHY: A transient storage failure must not lose the record; the next
	// run retries it.
	st := openTestStore(t)
	r := newTestRunner(t, st)
	ctx := context.Background()

	insertRaw(t, st, "yelp", `{"name": "Pinewood Social"}`)
	if _, err := st.DB.Exec(`DROP TABLE events`); err != nil {
		t.Fatalf("drop events: %v", err)
	}

	out, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	run := out.Run
	if run.Status != store.RunStatusDone {
		t.Fatalf("status: got %q (%s)", run.Status, run.Error)
	}
	if run.InsertFailed != 1 || run.Inserted != 0 || run.Retired != 0 {
		t.Errorf("insert_failed=%d inserted=%d retired=%d",
			run.InsertFailed, run.Inserted, run.Retired)
	}

	pending, _ := st.CountPendingRaw(ctx)
	if pending != 1 {
		t.Errorf("pending: got %d", pending)
	}
}

type recordedMetric struct {
	value float64
	unit  string
}

type fakeMetrics struct {
	recorded map[string]recordedMetric
}

func (f *fakeMetrics) RecordSimple(name string, value float64, unit string) {
	if f.recorded == nil {
		f.recorded = make(map[string]recordedMetric)
	}
	f.recorded[name] = recordedMetric{value, unit}
}

func TestRunRecordsMetrics(t *testing.T) {
	// WHAT: A completed run reports its counters to the metrics sink under
	// the shared observability names.
	// WHY: Readers of the observability database query by these names; a
	// rename on either side silently blanks the series.
	st := openTestStore(t)
	sink := &fakeMetrics{}
	r := New(st, normalize.New(normalize.Config{}), Config{Workers: 2, Metrics: sink})
	ctx := context.Background()

	insertRaw(t, st, "ticketmaster",
		`{"name": "Show A", "venue_name": "Ryman", "url": "https://example.com/a"}`)

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if m, ok := sink.recorded[observability.MetricRecordsFetched]; !ok || m.value != 1 {
		t.Errorf("fetched metric: ok=%v got %+v", ok, m)
	}
	if m, ok := sink.recorded[observability.MetricEventsInserted]; !ok || m.value != 1 {
		t.Errorf("inserted metric: ok=%v got %+v", ok, m)
	}
	if m, ok := sink.recorded[observability.MetricRunDurationMs]; !ok || m.unit != "milliseconds" {
		t.Errorf("duration metric: ok=%v got %+v", ok, m)
	}
}

func TestOutcomeReport(t *testing.T) {
	// WHAT: The run report is a display-width-aligned table with a TOTAL
	// row.
	// WHY: The report lands in logs and terminal output; ragged columns
	// make it unreadable.
	st := openTestStore(t)
	r := newTestRunner(t, st)

	insertRaw(t, st, "ticketmaster",
		`{"name": "Show A", "venue_name": "Ryman", "url": "https://example.com/a"}`)
	insertRaw(t, st, "craigslist", `{"name": "whatever"}`)

	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	report := out.Report()

	lines := strings.Split(strings.TrimRight(report, "\n"), "\n")
	if len(lines) != 4 { // header + 2 sources + TOTAL
		t.Fatalf("got %d lines:\n%s", len(lines), report)
	}
	if !strings.HasPrefix(lines[0], "SOURCE") {
		t.Errorf("header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "craigslist") || !strings.HasPrefix(lines[2], "ticketmaster") {
		t.Errorf("sources should be sorted:\n%s", report)
	}
	if !strings.HasPrefix(lines[3], "TOTAL") {
		t.Errorf("last row: %q", lines[3])
	}
	for i, line := range lines[1:] {
		if len(line) != len(lines[0]) {
			t.Errorf("line %d not aligned: %q vs header %q", i+1, line, lines[0])
		}
	}
}
