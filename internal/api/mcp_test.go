package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"seedling/internal/answer"
	"seedling/internal/knowledge"
	"seedling/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:     store,
		Answerer:  &mockAnswerer{resp: answer.Response{Text: "stored definition", Confident: true}},
		Rethinker: &mockRethinker{answer: "corrected"},
		Stats:     &mockStats{stats: knowledge.Stats{Known: 2, Pending: 1, Vectors: 2}},
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_Ask(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"prompt": "how does osmosis work",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp answer.Response
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !resp.Confident || resp.Text != "stored definition" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestMCPTool_Ask_MissingPrompt(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing prompt should be a tool error")
	}
}

func TestMCPTool_Learn(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpLearn(deps)

	result, err := handler(context.Background(), makeCallToolRequest("learn", map[string]interface{}{
		"mode": "deep",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	jobs, err := store.ListJobs(10)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("jobs = %v (err %v), want one queued", jobs, err)
	}
	if jobs[0].Mode != storage.ModeDeep || jobs[0].Status != storage.JobQueued {
		t.Fatalf("job = %+v", jobs[0])
	}
}

func TestMCPTool_Learn_RejectsGraphModes(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpLearn(deps)

	result, err := handler(context.Background(), makeCallToolRequest("learn", map[string]interface{}{
		"mode": "reconcile",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("reconcile is not a learning mode and should be rejected")
	}
}

func TestMCPTool_Rethink(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpRethink(deps)

	result, err := handler(context.Background(), makeCallToolRequest("rethink", map[string]interface{}{
		"prompt":       "q",
		"wrong_answer": "bad",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "Taking another look") || !strings.HasSuffix(text, "corrected") {
		t.Fatalf("text = %q, want stages then the corrected answer", text)
	}
}

func TestMCPTool_Stats(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpStats(deps)

	result, err := handler(context.Background(), makeCallToolRequest("knowledge_stats", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stats knowledge.Stats
	if err := json.Unmarshal([]byte(toolText(t, result)), &stats); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if stats.Known != 2 || stats.Pending != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMCPResource_Pending(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	if err := store.MarkPending("entropy"); err != nil {
		t.Fatalf("mark pending: %v", err)
	}

	handler := mcpResourcePending(deps)
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "seedling://pending"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %v", contents)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var keys []string
	if err := json.Unmarshal([]byte(text.Text), &keys); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(keys) != 1 || keys[0] != "entropy" {
		t.Fatalf("keys = %v", keys)
	}
}
