package affiche

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// eventsPageSize is the fixed page size of the events listing.
const eventsPageSize = 25

// RegisterHTTP mounts the JSON API on r.
func (svc *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", svc.handleHealthz)
	r.Post("/api/run", svc.handleRun)
	r.Get("/api/status", svc.handleStatus)
	r.Get("/api/events", svc.handleEvents)
	r.Post("/api/raw", svc.handleRaw)
}

func (svc *Service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun triggers one batch synchronously and returns its outcome. A
// run already in flight answers 409.
func (svc *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	out, err := svc.RunOnce(r.Context())
	if errors.Is(err, ErrRunInProgress) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (svc *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := svc.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleEvents lists catalog events, 25 per page. q runs as an FTS5 match;
// source and category filter exactly.
func (svc *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	events, err := svc.Search(r.Context(), SearchQuery{
		Text:     r.URL.Query().Get("q"),
		Source:   r.URL.Query().Get("source"),
		Category: r.URL.Query().Get("category"),
		Limit:    eventsPageSize,
		Offset:   (page - 1) * eventsPageSize,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []*Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "events": events})
}

// handleRaw accepts one collected record from a collector.
func (svc *Service) handleRaw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceTag string          `json:"source_tag"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := svc.InsertRaw(r.Context(), req.SourceTag, req.Payload)
	if errors.Is(err, ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
