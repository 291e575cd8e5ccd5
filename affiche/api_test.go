package affiche

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func setupAPIServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	svc := setupTestService(t)
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return svc, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestAPI_Healthz(t *testing.T) {
	_, ts := setupAPIServer(t)

	var body map[string]string
	if code := getJSON(t, ts.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("healthz: got %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("body: got %v", body)
	}
}

func TestAPI_IntakeRunSearchFlow(t *testing.T) {
	// WHAT: The full collector loop over HTTP: land a record, trigger a
	// run, read it back from status and the events listing.
	_, ts := setupAPIServer(t)

	var rec RawRecord
	code := postJSON(t, ts.URL+"/api/raw", map[string]any{
		"source_tag": "ticketmaster",
		"payload": map[string]any{
			"name":       "Ryman Residency",
			"url":        "https://example.com/ryman",
			"venue_name": "Ryman Auditorium",
		},
	}, &rec)
	if code != http.StatusCreated {
		t.Fatalf("raw: got %d", code)
	}
	if rec.ID == 0 || rec.SourceTag != "ticketmaster" {
		t.Fatalf("raw record: got %+v", rec)
	}

	var out Outcome
	if code := postJSON(t, ts.URL+"/api/run", nil, &out); code != http.StatusOK {
		t.Fatalf("run: got %d", code)
	}
	if out.Run == nil || out.Run.Status != "done" || out.Run.Inserted != 1 {
		t.Fatalf("outcome: got %+v", out.Run)
	}

	var st Status
	if code := getJSON(t, ts.URL+"/api/status", &st); code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if st.Events != 1 || st.PendingRaw != 0 {
		t.Fatalf("status: %+v", st)
	}

	var page struct {
		Page   int      `json:"page"`
		Events []*Event `json:"events"`
	}
	if code := getJSON(t, ts.URL+"/api/events?q=ryman", &page); code != http.StatusOK {
		t.Fatalf("events: got %d", code)
	}
	if len(page.Events) != 1 || page.Events[0].Name != "Ryman Residency" {
		t.Fatalf("events: got %+v", page.Events)
	}
}

func TestAPI_RawRejectsBadInput(t *testing.T) {
	_, ts := setupAPIServer(t)

	if code := postJSON(t, ts.URL+"/api/raw", map[string]any{
		"source_tag": "",
		"payload":    map[string]any{"name": "X"},
	}, nil); code != http.StatusBadRequest {
		t.Fatalf("blank tag: got %d", code)
	}

	resp, err := http.Post(ts.URL+"/api/raw", "application/json", bytes.NewBufferString("{broken"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("broken body: got %d", resp.StatusCode)
	}
}

func TestAPI_RunConflict(t *testing.T) {
	// WHAT: A held run lease maps to 409 on the trigger route.
	svc, ts := setupAPIServer(t)

	job, err := svc.lease.Claim(context.Background())
	if err != nil || job == nil {
		t.Fatalf("claim lease: job=%v err=%v", job, err)
	}

	var body map[string]string
	if code := postJSON(t, ts.URL+"/api/run", nil, &body); code != http.StatusConflict {
		t.Fatalf("run: got %d", code)
	}
	if body["error"] == "" {
		t.Fatal("error body should name the conflict")
	}
}

func TestAPI_EventsPagination(t *testing.T) {
	// WHAT: The listing pages at 25 and an empty page comes back as [].
	svc, ts := setupAPIServer(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		ev := &Event{
			Name: fmt.Sprintf("Show %02d", i),
			URL:  fmt.Sprintf("https://example.com/show/%02d", i),
		}
		if _, err := svc.store.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("insert event %d: %v", i, err)
		}
	}

	var page struct {
		Page   int      `json:"page"`
		Events []*Event `json:"events"`
	}
	getJSON(t, ts.URL+"/api/events", &page)
	if len(page.Events) != 25 {
		t.Fatalf("page 1: got %d, want 25", len(page.Events))
	}

	getJSON(t, ts.URL+"/api/events?page=2", &page)
	if page.Page != 2 || len(page.Events) != 5 {
		t.Fatalf("page 2: got page=%d n=%d", page.Page, len(page.Events))
	}

	getJSON(t, ts.URL+"/api/events?page=3", &page)
	if page.Events == nil || len(page.Events) != 0 {
		t.Fatalf("page 3: got %v, want empty non-nil", page.Events)
	}
}
