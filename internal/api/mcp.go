package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"seedling/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. It reuses the HTTP layer's
// collaborator interfaces so both surfaces stay in step.
type MCPDeps struct {
	Store     *storage.Store
	Answerer  Answerer
	Rethinker Rethinker
	Stats     StatsProvider
}

// NewMCPServer exposes the assistant as MCP tools plus a pending-concepts
// resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"seedling",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("seedling is a self-updating knowledge assistant: ask questions, trigger learning, and correct wrong answers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the knowledge base. Unknown topics are registered for background learning."),
			mcp.WithString("prompt", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("learn",
			mcp.WithDescription("Queue a learning job. Modes: quick (small batch), deep (all pending plus deepening), batch (self-directed, time-boxed)."),
			mcp.WithString("mode", mcp.Description("quick, deep, or batch (default quick)")),
		),
		mcpLearn(deps),
	)

	s.AddTool(
		mcp.NewTool("rethink",
			mcp.WithDescription("Re-derive a corrected answer for a question whose previous answer was wrong."),
			mcp.WithString("prompt", mcp.Description("The original question"), mcp.Required()),
			mcp.WithString("wrong_answer", mcp.Description("The answer that was wrong"), mcp.Required()),
		),
		mcpRethink(deps),
	)

	s.AddTool(
		mcp.NewTool("knowledge_stats",
			mcp.WithDescription("Report how many concepts are known, pending, and vector-indexed."),
		),
		mcpStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"seedling://pending",
			"Pending Concepts",
			mcp.WithResourceDescription("Concepts registered as unknown, awaiting research"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}

		resp, err := deps.Answerer.Answer(ctx, prompt)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}

		encoded, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding answer: %v", err)), nil
		}
		return mcpText(string(encoded)), nil
	}
}

func mcpLearn(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mode := req.GetString("mode", storage.ModeQuick)
		switch mode {
		case storage.ModeQuick, storage.ModeDeep, storage.ModeBatch:
		default:
			return mcpError(fmt.Sprintf("unknown learning mode %q", mode)), nil
		}

		job := storage.Job{ID: uuid.New().String(), Mode: mode}
		if err := deps.Store.EnqueueJob(job); err != nil {
			return mcpError(fmt.Sprintf("enqueueing job: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued %s learning job %s", mode, job.ID)), nil
	}
}

func mcpRethink(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}
		wrongAnswer, err := req.RequireString("wrong_answer")
		if err != nil {
			return mcpError("wrong_answer is required"), nil
		}

		var stages []string
		corrected := deps.Rethinker.Rethink(ctx, prompt, wrongAnswer, func(stage string) {
			stages = append(stages, stage)
		})
		if corrected == "" {
			return mcpError("could not produce a corrected answer"), nil
		}

		var b strings.Builder
		for _, stage := range stages {
			b.WriteString(stage)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(corrected)
		return mcpText(b.String()), nil
	}
}

func mcpStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Stats.Stats(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("reading stats: %v", err)), nil
		}
		encoded, err := json.Marshal(stats)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding stats: %v", err)), nil
		}
		return mcpText(string(encoded)), nil
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		pending, err := deps.Store.ListByStatus(storage.StatusPending, 200)
		if err != nil {
			return nil, fmt.Errorf("listing pending concepts: %w", err)
		}

		keys := make([]string, 0, len(pending))
		for _, c := range pending {
			keys = append(keys, c.Key)
		}
		encoded, err := json.Marshal(keys)
		if err != nil {
			return nil, fmt.Errorf("encoding pending concepts: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(encoded),
			},
		}, nil
	}
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
