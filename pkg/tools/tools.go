// Package tools exposes the memory service over MCP. Handlers parse
// primitive tool parameters, call the service, and return a JSON mapping
// carrying at minimum a status tag plus either a payload or an error
// message; no handler lets an error escape the tool boundary.
package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dotsetgreg/memvault/pkg/logger"
	"github.com/dotsetgreg/memvault/pkg/memory"
)

// MemoryTools registers the memvault tool surface on an MCP server.
type MemoryTools struct {
	svc *memory.Service
}

func New(svc *memory.Service) *MemoryTools {
	return &MemoryTools{svc: svc}
}

// Register adds every tool to s.
func (t *MemoryTools) Register(s *server.MCPServer) {
	s.AddTool(healthTool(), t.handleHealth)
	s.AddTool(saveTool(), t.handleSave)
	s.AddTool(searchTool(), t.handleSearch)
	s.AddTool(listTool(), t.handleList)
	s.AddTool(getContentTool(), t.handleGetContent)
	s.AddTool(deleteTool(), t.handleDelete)
	s.AddTool(sweepTool(), t.handleSweep)
}

func healthTool() mcp.Tool {
	return mcp.NewTool("health",
		mcp.WithDescription("Health check: reports the configured vector store name, whether its id is cached, and the current UTC time. Performs no remote calls."),
	)
}

func (t *MemoryTools) handleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := t.svc.Health()
	return jsonResult(map[string]any{
		"status":                 "ok",
		"vector_store_name":      info.StoreName,
		"vector_store_id_cached": info.StoreIDCached,
		"time_utc":               info.TimeUTC,
	}), nil
}

func saveTool() mcp.Tool {
	return mcp.NewTool("save_memory",
		mcp.WithDescription("Save a memory to the vector store. Secrets (bearer tokens, API keys) are redacted by default; redaction is best-effort, not a guarantee. Returns file_id, sha256 of the stored text, and the attributes that were attached."),
		mcp.WithString("memory", mcp.Required(),
			mcp.Description("Text to persist")),
		mcp.WithString("user_id",
			mcp.Description("Owner of the memory (default \"default\")")),
		mcp.WithString("session_id",
			mcp.Description("Optional session/conversation scope")),
		mcp.WithString("memory_type",
			mcp.Description("Category such as note, preference, decision, todo (default \"note\")")),
		mcp.WithArray("tags",
			mcp.Description("Optional tags; stored as a canonical JSON array for exact-match filtering"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("redact_secrets",
			mcp.Description("Override the configured redaction default for this save")),
	)
}

func (t *MemoryTools) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var redact *bool
	if v, ok := req.GetArguments()["redact_secrets"].(bool); ok {
		redact = &v
	}

	res, err := t.svc.Save(ctx, memory.SaveRequest{
		Memory:        req.GetString("memory", ""),
		UserID:        req.GetString("user_id", memory.DefaultUserID),
		SessionID:     req.GetString("session_id", ""),
		Type:          req.GetString("memory_type", memory.DefaultMemoryType),
		Tags:          req.GetStringSlice("tags", nil),
		RedactSecrets: redact,
	})
	if err != nil {
		return errorResult("save_memory", err), nil
	}
	return jsonResult(map[string]any{
		"status":          "saved",
		"vector_store_id": res.VectorStoreID,
		"file_id":         res.FileID,
		"sha256":          res.SHA256,
		"attributes":      res.Attributes,
	}), nil
}

func searchTool() mcp.Tool {
	return mcp.NewTool("search_memory",
		mcp.WithDescription("Search memories by semantic similarity, optionally filtered by user_id, session_id, memory_type and tags. Tag filters are exact, order-sensitive matches against the stored tag list. max_results is clamped to 1..50."),
		mcp.WithString("query", mcp.Required(),
			mcp.Description("Search text")),
		mcp.WithString("user_id",
			mcp.Description("Filter by owner (default \"default\")")),
		mcp.WithString("session_id",
			mcp.Description("Filter by session")),
		mcp.WithString("memory_type",
			mcp.Description("Filter by category")),
		mcp.WithArray("tags",
			mcp.Description("Filter by exact tag list (same order as stored)"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("max_results",
			mcp.Description("Number of results, clamped to 1..50 (default 8)")),
		mcp.WithBoolean("rewrite_query",
			mcp.Description("Let the service rewrite the query for recall (default true)")),
		mcp.WithBoolean("return_full_items",
			mcp.Description("Return one entry per document with score/filename/attributes instead of flat text chunks")),
	)
}

func (t *MemoryTools) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.svc.Search(ctx, req.GetString("query", ""), memory.SearchOptions{
		UserID:       req.GetString("user_id", memory.DefaultUserID),
		SessionID:    req.GetString("session_id", ""),
		Type:         req.GetString("memory_type", ""),
		Tags:         req.GetStringSlice("tags", nil),
		MaxResults:   req.GetInt("max_results", 8),
		RewriteQuery: req.GetBool("rewrite_query", true),
		FullItems:    req.GetBool("return_full_items", false),
	})
	if err != nil {
		return errorResult("search_memory", err), nil
	}

	out := map[string]any{
		"status":          "ok",
		"vector_store_id": res.VectorStoreID,
		"search_query":    res.SearchQuery,
		"has_more":        res.HasMore,
	}
	if res.Items != nil {
		out["results"] = res.Items
	} else {
		out["results"] = res.Texts
	}
	return jsonResult(out), nil
}

func listTool() mcp.Tool {
	return mcp.NewTool("list_memories",
		mcp.WithDescription("List documents in the vector store. A user_id filter is applied client-side after per-item attribute retrieval, so count reflects the filtered items while has_more/last_id describe the raw page. limit is clamped to 1..100."),
		mcp.WithString("user_id",
			mcp.Description("Filter by owner (client-side)")),
		mcp.WithNumber("limit",
			mcp.Description("Page size, clamped to 1..100 (default 20)")),
		mcp.WithString("status_filter",
			mcp.Description("Ingestion status: in_progress, completed, failed, cancelled; empty for all (default completed)")),
	)
}

func (t *MemoryTools) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.svc.List(ctx, memory.ListOptions{
		UserID:       req.GetString("user_id", ""),
		Limit:        req.GetInt("limit", 20),
		StatusFilter: req.GetString("status_filter", "completed"),
	})
	if err != nil {
		return errorResult("list_memories", err), nil
	}
	return jsonResult(map[string]any{
		"status":          "ok",
		"vector_store_id": res.VectorStoreID,
		"count":           res.Count,
		"items":           res.Items,
		"has_more":        res.HasMore,
		"last_id":         res.LastID,
	}), nil
}

func getContentTool() mcp.Tool {
	return mcp.NewTool("get_memory_content",
		mcp.WithDescription("Fetch one memory's attributes and parsed text content by file_id."),
		mcp.WithString("file_id", mcp.Required(),
			mcp.Description("Document id returned by save_memory or list_memories")),
	)
}

func (t *MemoryTools) handleGetContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.svc.GetContent(ctx, req.GetString("file_id", ""))
	if err != nil {
		return errorResult("get_memory_content", err), nil
	}
	return jsonResult(map[string]any{
		"status":          "ok",
		"vector_store_id": res.VectorStoreID,
		"file_id":         res.FileID,
		"attributes":      res.Attributes,
		"content_texts":   res.ContentTexts,
	}), nil
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("delete_memory",
		mcp.WithDescription("Detach a memory from the vector store by file_id. The underlying content object may persist outside the store; this is not full erasure."),
		mcp.WithString("file_id", mcp.Required(),
			mcp.Description("Document id to delete")),
	)
}

func (t *MemoryTools) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.svc.Delete(ctx, req.GetString("file_id", ""))
	if err != nil {
		return errorResult("delete_memory", err), nil
	}
	return jsonResult(map[string]any{
		"status":          "ok",
		"vector_store_id": res.VectorStoreID,
		"file_id":         res.FileID,
		"deleted":         res.Deleted,
	}), nil
}

func sweepTool() mcp.Tool {
	return mcp.NewTool("sweep_orphans",
		mcp.WithDescription("Scan one page of the store for orphan documents (uploaded but never tagged with attributes, e.g. after a failed save) and optionally delete them."),
		mcp.WithNumber("limit",
			mcp.Description("Page size, clamped to 1..100 (default 100)")),
		mcp.WithBoolean("purge",
			mcp.Description("Delete the orphans found instead of only reporting them")),
	)
}

func (t *MemoryTools) handleSweep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.svc.SweepOrphans(ctx, req.GetInt("limit", 100), req.GetBool("purge", false))
	if err != nil {
		return errorResult("sweep_orphans", err), nil
	}
	return jsonResult(map[string]any{
		"status":          "ok",
		"vector_store_id": res.VectorStoreID,
		"scanned":         res.Scanned,
		"orphans":         res.Orphans,
		"purged":          res.Purged,
		"has_more":        res.HasMore,
	}), nil
}

func jsonResult(payload map[string]any) *mcp.CallToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(`{"status":"error","error":"failed to encode result"}`)
	}
	return mcp.NewToolResultText(string(data))
}

// errorResult converts a service error into a structured error payload.
// The taxonomy survives the boundary: partial writes carry the orphaned
// file id, capability gaps name the missing capability.
func errorResult(tool string, err error) *mcp.CallToolResult {
	payload := map[string]any{
		"status": "error",
		"error":  err.Error(),
	}

	var pw *memory.PartialWriteError
	var ce *memory.CapabilityError
	switch {
	case errors.As(err, &pw):
		payload["vector_store_id"] = pw.VectorStoreID
		payload["file_id"] = pw.FileID
		payload["sha256"] = pw.SHA256
		payload["partial_write"] = true
	case errors.As(err, &ce):
		payload["capability"] = ce.Capability
		if ce.FileID != "" {
			payload["file_id"] = ce.FileID
		}
	case memory.IsValidation(err):
		// No remote call was made; the message alone suffices.
	default:
		logger.ErrorCF("tools", "Tool call failed",
			map[string]interface{}{"tool": tool, "error": err.Error()})
	}

	data, mErr := json.Marshal(payload)
	if mErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}
