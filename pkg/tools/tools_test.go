package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotsetgreg/memvault/pkg/memory"
	"github.com/dotsetgreg/memvault/pkg/vecstore"
)

func newTestTools(t *testing.T) *MemoryTools {
	t.Helper()
	client, err := vecstore.NewSQLiteClient(filepath.Join(t.TempDir(), "memvault.db"))
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	svc := memory.NewService(client, memory.Options{
		StoreName:       "MEMORIES_STORE",
		MaxMemoryChars:  8000,
		RedactByDefault: true,
	})
	return New(svc)
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decodePayload(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %+v", res)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &payload); err != nil {
		t.Fatalf("decode payload %q: %v", tc.Text, err)
	}
	return payload
}

func TestHandleHealth(t *testing.T) {
	mt := newTestTools(t)

	res, err := mt.handleHealth(context.Background(), callReq("health", nil))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	payload := decodePayload(t, res)
	if payload["status"] != "ok" {
		t.Fatalf("status = %v", payload["status"])
	}
	if payload["vector_store_name"] != "MEMORIES_STORE" {
		t.Fatalf("store name = %v", payload["vector_store_name"])
	}
	if payload["vector_store_id_cached"] != false {
		t.Fatal("fresh service must report an uncached store id")
	}
}

func TestHandleSaveDefaultsAndResult(t *testing.T) {
	mt := newTestTools(t)

	res, err := mt.handleSave(context.Background(), callReq("save_memory", map[string]any{
		"memory": "User prefers dark mode",
	}))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	payload := decodePayload(t, res)
	if payload["status"] != "saved" {
		t.Fatalf("status = %v", payload["status"])
	}
	if payload["file_id"] == "" || payload["file_id"] == nil {
		t.Fatal("missing file_id")
	}
	sha, _ := payload["sha256"].(string)
	if len(sha) != 64 {
		t.Fatalf("sha256 = %q", sha)
	}
	attrs, _ := payload["attributes"].(map[string]any)
	if attrs["user_id"] != "default" {
		t.Fatalf("default user_id = %v", attrs["user_id"])
	}
	if attrs["type"] != "note" {
		t.Fatalf("default type = %v", attrs["type"])
	}
	if attrs["redacted"] != true {
		t.Fatalf("redacted = %v", attrs["redacted"])
	}
}

func TestHandleSaveValidationIsErrorResult(t *testing.T) {
	mt := newTestTools(t)

	res, err := mt.handleSave(context.Background(), callReq("save_memory", map[string]any{
		"memory": "   ",
	}))
	if err != nil {
		t.Fatalf("handler must not propagate errors, got %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	payload := decodePayload(t, res)
	if payload["status"] != "error" {
		t.Fatalf("status = %v", payload["status"])
	}
	if payload["error"] == "" || payload["error"] == nil {
		t.Fatal("missing error message")
	}
}

func TestHandleSearchRoundTrip(t *testing.T) {
	mt := newTestTools(t)
	ctx := context.Background()

	if _, err := mt.handleSave(ctx, callReq("save_memory", map[string]any{
		"memory":      "User prefers dark mode",
		"user_id":     "u1",
		"memory_type": "preference",
	})); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := mt.handleSearch(ctx, callReq("search_memory", map[string]any{
		"query":       "dark mode",
		"user_id":     "u1",
		"max_results": float64(3),
	}))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	payload := decodePayload(t, res)
	if payload["status"] != "ok" {
		t.Fatalf("status = %v", payload["status"])
	}
	results, _ := payload["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", payload["results"])
	}
	text, _ := results[0].(string)
	if text == "" {
		t.Fatalf("compact mode must return flat texts, got %T", results[0])
	}
}

func TestHandleListCountsFilteredItems(t *testing.T) {
	mt := newTestTools(t)
	ctx := context.Background()

	for _, user := range []string{"u1", "u1", "u2"} {
		if _, err := mt.handleSave(ctx, callReq("save_memory", map[string]any{
			"memory":  "note for " + user,
			"user_id": user,
		})); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	res, err := mt.handleList(ctx, callReq("list_memories", map[string]any{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	payload := decodePayload(t, res)
	if payload["count"] != float64(2) {
		t.Fatalf("count = %v", payload["count"])
	}

	res, err = mt.handleList(ctx, callReq("list_memories", map[string]any{
		"user_id": "nobody",
	}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	payload = decodePayload(t, res)
	if payload["count"] != float64(0) {
		t.Fatalf("count = %v", payload["count"])
	}
	items, _ := payload["items"].([]any)
	if len(items) != 0 {
		t.Fatalf("items = %v", payload["items"])
	}
}

func TestHandleGetContentAndDelete(t *testing.T) {
	mt := newTestTools(t)
	ctx := context.Background()

	res, err := mt.handleSave(ctx, callReq("save_memory", map[string]any{
		"memory": "remember the milk",
	}))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	fileID, _ := decodePayload(t, res)["file_id"].(string)

	res, err = mt.handleGetContent(ctx, callReq("get_memory_content", map[string]any{
		"file_id": fileID,
	}))
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	payload := decodePayload(t, res)
	texts, _ := payload["content_texts"].([]any)
	if len(texts) != 1 || texts[0] != "remember the milk" {
		t.Fatalf("content_texts = %v", payload["content_texts"])
	}

	res, err = mt.handleDelete(ctx, callReq("delete_memory", map[string]any{
		"file_id": fileID,
	}))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	payload = decodePayload(t, res)
	if payload["deleted"] != true {
		t.Fatalf("deleted = %v", payload["deleted"])
	}

	// Deleting again surfaces a structured error result.
	res, err = mt.handleDelete(ctx, callReq("delete_memory", map[string]any{
		"file_id": fileID,
	}))
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result for a missing file")
	}
}

func TestHandleSweepReportsOrphans(t *testing.T) {
	mt := newTestTools(t)
	ctx := context.Background()

	res, err := mt.handleSweep(ctx, callReq("sweep_orphans", map[string]any{
		"limit": float64(50),
	}))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	payload := decodePayload(t, res)
	if payload["status"] != "ok" {
		t.Fatalf("status = %v", payload["status"])
	}
	if payload["purged"] != float64(0) {
		t.Fatalf("purged = %v", payload["purged"])
	}
	orphans, ok := payload["orphans"].([]any)
	if !ok || len(orphans) != 0 {
		t.Fatalf("orphans = %v", payload["orphans"])
	}
}
