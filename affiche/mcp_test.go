package affiche

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "affiche-test", Version: "0.1.0"}

// mcpSession registers the tools on an in-memory server and returns a
// connected client session that calls them end-to-end.
func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	svc := setupTestService(t)

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return svc, session
}

// callTool invokes a tool and returns the JSON text from the first
// TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_RunPipelineAndStatus(t *testing.T) {
	svc, session := mcpSession(t)
	ctx := context.Background()

	if _, err := svc.InsertRaw(ctx, "ticketmaster", ticketPayload(t, "Ryman Residency", "https://example.com/ryman")); err != nil {
		t.Fatalf("insert raw: %v", err)
	}

	var out Outcome
	if err := json.Unmarshal([]byte(callTool(t, session, "affiche_run_pipeline", map[string]any{})), &out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if out.Run == nil || out.Run.Status != "done" || out.Run.Inserted != 1 {
		t.Fatalf("outcome: got %+v", out.Run)
	}

	var st struct {
		Status
		Runs []*Run `json:"runs"`
	}
	if err := json.Unmarshal([]byte(callTool(t, session, "affiche_run_status", map[string]any{"history": 5})), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Events != 1 || st.PendingRaw != 0 {
		t.Fatalf("status: %+v", st.Status)
	}
	if len(st.Runs) != 1 || st.Runs[0].ID != out.Run.ID {
		t.Fatalf("runs: got %+v", st.Runs)
	}
}

func TestMCP_SearchEvents(t *testing.T) {
	svc, session := mcpSession(t)
	ctx := context.Background()

	svc.InsertRaw(ctx, "ticketmaster", ticketPayload(t, "Bluegrass Evening", "https://example.com/bg"))
	if _, err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	var events []*Event
	if err := json.Unmarshal([]byte(callTool(t, session, "affiche_search_events", map[string]any{"q": "bluegrass"})), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Name != "Bluegrass Evening" {
		t.Fatalf("events: got %+v", events)
	}

	// No hits is an empty array, not null.
	text := callTool(t, session, "affiche_search_events", map[string]any{"q": "zydeco"})
	if text != "[]" {
		t.Fatalf("no hits: got %q", text)
	}
}

func TestMCP_IngestDocument(t *testing.T) {
	svc, session := mcpSession(t)
	svc.config.IngestDir = t.TempDir()

	writeIngestFile(t, svc.config.IngestDir, "venues.txt",
		"Bluebird Cafe\n4104 Hillsboro Rd\nacoustic listening room\n")

	var resp map[string]int
	if err := json.Unmarshal([]byte(callTool(t, session, "affiche_ingest_document", map[string]any{"path": "venues.txt"})), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["stored"] != 1 {
		t.Fatalf("stored: got %d", resp["stored"])
	}
}

func TestMCP_RunConflictIsToolError(t *testing.T) {
	// WHAT: A held lease surfaces as a tool error, not a protocol error,
	// so the session survives.
	svc, session := mcpSession(t)

	job, err := svc.lease.Claim(context.Background())
	if err != nil || job == nil {
		t.Fatalf("claim lease: job=%v err=%v", job, err)
	}

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "affiche_run_pipeline",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error while lease is held")
	}
}
