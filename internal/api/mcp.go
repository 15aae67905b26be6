package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chat2doc/chat2doc/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. Summarizer is optional; when
// nil, summarize_conversation reports the feature as unavailable.
type MCPDeps struct {
	Coordinator Coordinator
	Tracker     JobReader
	Recent      RecentLister
	Artifacts   ArtifactReader
	Summarizer  Summarizer
}

// Coordinator abstracts submission for the MCP layer.
type Coordinator interface {
	SubmitFile(ctx context.Context, userID, filename string, data []byte) (storage.Conversion, error)
	SubmitURL(ctx context.Context, userID, url string) (storage.Conversion, error)
}

// JobReader abstracts tracker queries for the MCP layer.
type JobReader interface {
	Get(id string) (storage.Conversion, error)
	List(userID string) ([]storage.Conversion, error)
	Delete(id string) error
}

// RecentLister reports the newest conversions across all users.
type RecentLister interface {
	ListRecentConversions(limit int) ([]storage.Conversion, error)
}

// NewMCPServer creates an MCP server with the conversion tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"chat2doc",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("chat2doc — convert chat exports (ChatGPT, Claude, Grok) into PDF and DOCX documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("convert_file",
			mcp.WithDescription("Convert an uploaded chat export into PDF and DOCX documents."),
			mcp.WithString("user_id", mcp.Description("Owner of the conversion"), mcp.Required()),
			mcp.WithString("filename", mcp.Description("Original filename, including extension"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Base64-encoded file content"), mcp.Required()),
		),
		mcpConvertFile(deps),
	)

	s.AddTool(
		mcp.NewTool("convert_url",
			mcp.WithDescription("Convert a shared conversation link into PDF and DOCX documents."),
			mcp.WithString("user_id", mcp.Description("Owner of the conversion"), mcp.Required()),
			mcp.WithString("url", mcp.Description("Share link to fetch and convert"), mcp.Required()),
		),
		mcpConvertURL(deps),
	)

	s.AddTool(
		mcp.NewTool("list_conversions",
			mcp.WithDescription("List a user's conversions, newest first."),
			mcp.WithString("user_id", mcp.Description("Owner to list for"), mcp.Required()),
		),
		mcpListConversions(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_conversions",
			mcp.WithDescription("List the most recent conversions across all users."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 10)")),
		),
		mcpRecentConversions(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_conversion",
			mcp.WithDescription("Delete a conversion record and its generated documents."),
			mcp.WithString("conversion_id", mcp.Description("Conversion to delete"), mcp.Required()),
		),
		mcpDeleteConversion(deps),
	)

	s.AddTool(
		mcp.NewTool("summarize_conversation",
			mcp.WithDescription("Generate a short summary of a converted conversation."),
			mcp.WithString("conversion_id", mcp.Description("Completed conversion to summarize"), mcp.Required()),
		),
		mcpSummarizeConversation(deps),
	)

	return s
}

func mcpConvertFile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		filename, err := req.RequireString("filename")
		if err != nil {
			return mcpError("filename is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return mcpError("content must be base64-encoded"), nil
		}

		job, err := deps.Coordinator.SubmitFile(ctx, userID, filename, data)
		if err != nil {
			return mcpError(fmt.Sprintf("submission rejected: %v", err)), nil
		}
		return mcpJobResult(job)
	}
}

func mcpConvertURL(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}

		job, err := deps.Coordinator.SubmitURL(ctx, userID, url)
		if err != nil {
			return mcpError(fmt.Sprintf("submission rejected: %v", err)), nil
		}
		return mcpJobResult(job)
	}
}

func mcpListConversions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		list, err := deps.Tracker.List(userID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing failed: %v", err)), nil
		}

		b, err := json.Marshal(conversionSummaries(list))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecentConversions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit < 1 || limit > 100 {
			return mcpError("limit must be between 1 and 100"), nil
		}

		list, err := deps.Recent.ListRecentConversions(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing failed: %v", err)), nil
		}

		b, err := json.Marshal(conversionSummaries(list))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeleteConversion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("conversion_id")
		if err != nil {
			return mcpError("conversion_id is required"), nil
		}

		if err := deps.Tracker.Delete(id); err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted conversion %s", id)), nil
	}
}

func mcpSummarizeConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Summarizer == nil {
			return mcpError("summarization not available: no local model configured"), nil
		}

		id, err := req.RequireString("conversion_id")
		if err != nil {
			return mcpError("conversion_id is required"), nil
		}

		job, err := deps.Tracker.Get(id)
		if err != nil {
			return mcpError(fmt.Sprintf("conversion not found: %v", err)), nil
		}

		conv, err := conversationFor(AppDeps{Artifacts: deps.Artifacts}, job)
		if err != nil {
			return mcpError(fmt.Sprintf("cannot reload conversation: %v", err)), nil
		}

		summary, err := deps.Summarizer.Summarize(ctx, conv)
		if err != nil {
			return mcpError(fmt.Sprintf("summarization failed: %v", err)), nil
		}
		return mcpText(summary), nil
	}
}

type conversionSummary struct {
	ID        string `json:"conversion_id"`
	UserID    string `json:"user_id"`
	Filename  string `json:"original_filename"`
	Platform  string `json:"platform"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Error     string `json:"error,omitempty"`
}

func conversionSummaries(list []storage.Conversion) []conversionSummary {
	results := make([]conversionSummary, len(list))
	for i, c := range list {
		results[i] = conversionSummary{
			ID:        c.ID,
			UserID:    c.UserID,
			Filename:  c.OriginalFilename,
			Platform:  c.Platform,
			Status:    string(c.Status),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
			Error:     c.Error,
		}
	}
	return results
}

func mcpJobResult(job storage.Conversion) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal record: %v", err)), nil
	}
	if job.Status == storage.StatusFailed {
		return mcpError(string(b)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
