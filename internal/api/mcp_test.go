package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chat2doc/chat2doc/internal/artifact"
	"github.com/chat2doc/chat2doc/internal/conversation"
	"github.com/chat2doc/chat2doc/internal/pipeline"
	"github.com/chat2doc/chat2doc/internal/storage"
	"github.com/chat2doc/chat2doc/internal/tracker"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	artifacts, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tr := tracker.New(store, artifacts)

	return MCPDeps{
		Coordinator: pipeline.New(tr, store, artifacts, nil),
		Tracker:     tr,
		Recent:      store,
		Artifacts:   artifacts,
	}
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

func convertTestFile(t *testing.T, deps MCPDeps) storage.Conversion {
	t.Helper()
	result, err := mcpConvertFile(deps)(context.Background(), makeCallToolRequest("convert_file", map[string]interface{}{
		"user_id":  "u1",
		"filename": "export.json",
		"content":  base64.StdEncoding.EncodeToString([]byte(chatgptExport)),
	}))
	if err != nil {
		t.Fatalf("convert_file: %v", err)
	}
	if result.IsError {
		t.Fatalf("convert_file returned error: %s", toolText(t, result))
	}

	var job storage.Conversion
	if err := json.Unmarshal([]byte(toolText(t, result)), &job); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	return job
}

func TestMCPConvertFile(t *testing.T) {
	deps := newTestMCPDeps(t)

	job := convertTestFile(t, deps)
	if job.Status != storage.StatusCompleted || job.Platform != "chatgpt" {
		t.Errorf("record = %+v", job)
	}
}

func TestMCPConvertFile_BadBase64(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpConvertFile(deps)(context.Background(), makeCallToolRequest("convert_file", map[string]interface{}{
		"user_id":  "u1",
		"filename": "export.json",
		"content":  "not base64!!",
	}))
	if err != nil {
		t.Fatalf("convert_file: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for invalid base64")
	}
}

func TestMCPConvertFile_UnsupportedExtension(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpConvertFile(deps)(context.Background(), makeCallToolRequest("convert_file", map[string]interface{}{
		"user_id":  "u1",
		"filename": "export.xyz",
		"content":  base64.StdEncoding.EncodeToString([]byte("data")),
	}))
	if err != nil {
		t.Fatalf("convert_file: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unsupported extension")
	}
}

func TestMCPListAndDelete(t *testing.T) {
	deps := newTestMCPDeps(t)
	job := convertTestFile(t, deps)

	result, err := mcpListConversions(deps)(context.Background(), makeCallToolRequest("list_conversions", map[string]interface{}{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("list_conversions: %v", err)
	}
	var list []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0]["conversion_id"] != job.ID {
		t.Errorf("list = %v", list)
	}

	result, err = mcpDeleteConversion(deps)(context.Background(), makeCallToolRequest("delete_conversion", map[string]interface{}{
		"conversion_id": job.ID,
	}))
	if err != nil {
		t.Fatalf("delete_conversion: %v", err)
	}
	if result.IsError {
		t.Fatalf("delete failed: %s", toolText(t, result))
	}

	if _, err := deps.Tracker.Get(job.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("record still present after delete")
	}
}

func TestMCPRecentConversions(t *testing.T) {
	deps := newTestMCPDeps(t)
	job := convertTestFile(t, deps)

	result, err := mcpRecentConversions(deps)(context.Background(), makeCallToolRequest("recent_conversions", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("recent_conversions: %v", err)
	}
	var list []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0]["conversion_id"] != job.ID {
		t.Errorf("list = %v", list)
	}
	if list[0]["user_id"] != "u1" {
		t.Errorf("user_id = %v", list[0]["user_id"])
	}

	result, err = mcpRecentConversions(deps)(context.Background(), makeCallToolRequest("recent_conversions", map[string]interface{}{
		"limit": float64(0),
	}))
	if err != nil {
		t.Fatalf("recent_conversions: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for out-of-range limit")
	}
}

func TestMCPSummarize(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Summarizer = &mockSummarizer{
		summarizeFn: func(_ context.Context, conv *conversation.Conversation) (string, error) {
			if conv.MessageCount() != 2 {
				t.Errorf("summarizer got %d messages", conv.MessageCount())
			}
			return "A Lisbon trip was planned.", nil
		},
	}
	job := convertTestFile(t, deps)

	result, err := mcpSummarizeConversation(deps)(context.Background(), makeCallToolRequest("summarize_conversation", map[string]interface{}{
		"conversion_id": job.ID,
	}))
	if err != nil {
		t.Fatalf("summarize_conversation: %v", err)
	}
	if result.IsError {
		t.Fatalf("summarize failed: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "A Lisbon trip was planned." {
		t.Errorf("summary = %q", got)
	}
}

func TestMCPSummarize_NotConfigured(t *testing.T) {
	deps := newTestMCPDeps(t)
	job := convertTestFile(t, deps)

	result, err := mcpSummarizeConversation(deps)(context.Background(), makeCallToolRequest("summarize_conversation", map[string]interface{}{
		"conversion_id": job.ID,
	}))
	if err != nil {
		t.Fatalf("summarize_conversation: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result without a summarizer")
	}
}
