// Package mcpsurface exposes the orchestration core over the Model
// Context Protocol, so an MCP-compatible coding agent (Claude Code and
// similar) can ask questions against the configured data sources without
// a REST round trip. Grounded on the teacher's internal/mcp/mcp.go server
// wrapper and tools.go's tool-registration idiom, retargeted from the
// decision-audit trail to thread-scoped question answering.
package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/google/uuid"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/orchestrator"
	"github.com/sqlorc/core/internal/session"
)

// Server wraps an mcp-go MCPServer with sqlorc's orchestration core.
type Server struct {
	mcpServer    *mcpserver.MCPServer
	catalog      *catalog.Catalog
	sessions     session.Store
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

// New creates and configures the MCP server with every tool registered.
func New(cat *catalog.Catalog, sessions session.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	s := &Server{
		catalog:      cat,
		sessions:     sessions,
		orchestrator: orch,
		logger:       logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"sqlorc",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("ask_question",
			mcplib.WithDescription(`Ask a natural-language question against the configured SQL data sources.

WHEN TO USE: whenever you need an answer derived from querying one or more
of the configured databases rather than writing SQL yourself. The
question is run through a five-stage pipeline (validate, decide, plan,
execute, summarize) and the result is one of: an answer from the data, a
direct answer that needed no query, a clarification request, a rejection
if the question is out of scope, a plan error, or an execution error.

A thread_id groups a conversation: pass the same thread_id across calls
to give the pipeline access to prior turns as context. Omit it to start a
new thread.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("question",
				mcplib.Description("The natural-language question to answer."),
				mcplib.Required(),
			),
			mcplib.WithString("thread_id",
				mcplib.Description("UUID of an existing thread to continue. Omit to start a new thread."),
			),
		),
		s.handleAskQuestion,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("list_data_sources",
			mcplib.WithDescription("List every configured database: its id, name, and description. Use this to learn what ask_question can draw on before asking."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListDataSources,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_token_usage",
			mcplib.WithDescription("Get the accumulated LLM token usage for a thread: input/output/total tokens and call count."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("thread_id",
				mcplib.Description("UUID of the thread to report usage for."),
				mcplib.Required(),
			),
		),
		s.handleGetTokenUsage,
	)
}

func (s *Server) handleAskQuestion(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := request.GetString("question", "")
	if question == "" {
		return errorResult("question is required"), nil
	}

	threadIDStr := request.GetString("thread_id", "")
	var threadID uuid.UUID
	if threadIDStr == "" {
		thread, err := s.sessions.CreateThread(ctx, "")
		if err != nil {
			return errorResult(fmt.Sprintf("failed to create thread: %v", err)), nil
		}
		threadID = thread.ID
	} else {
		id, err := uuid.Parse(threadIDStr)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid thread_id: %v", err)), nil
		}
		if _, err := s.sessions.GetThread(ctx, id); err != nil {
			return errorResult(fmt.Sprintf("unknown thread_id: %v", err)), nil
		}
		threadID = id
	}

	if _, err := s.sessions.AddMessage(ctx, threadID, model.SenderUser, question, nil); err != nil {
		return errorResult(fmt.Sprintf("failed to record question: %v", err)), nil
	}

	result, err := s.orchestrator.ProcessQuestion(ctx, threadID, question)
	if err != nil {
		return errorResult(fmt.Sprintf("pipeline failure: %v", err)), nil
	}

	metadata := map[string]any{"tag": string(result.Tag)}
	if result.Plan != nil {
		metadata["plan"] = result.Plan
	}
	if len(result.StepResults) > 0 {
		metadata["step_results"] = result.StepResults
	}
	if len(result.DebugInfo) > 0 {
		metadata["debug_info"] = result.DebugInfo
	}
	if _, err := s.sessions.AddMessage(ctx, threadID, model.SenderServer, result.Message, metadata); err != nil {
		s.logger.Warn("mcpsurface: record answer", "thread_id", threadID, "error", err)
	}

	resultData, err := json.MarshalIndent(map[string]any{
		"thread_id":      threadID,
		"tag":            result.Tag,
		"answer":         result.Message,
		"confidence":     result.Confidence,
		"data_sources_used": result.UsedDatabases,
	}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleListDataSources(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sources := s.catalog.ListSources()
	resultData, err := json.MarshalIndent(map[string]any{"data_sources": sources}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal data sources: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleGetTokenUsage(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	threadIDStr := request.GetString("thread_id", "")
	id, err := uuid.Parse(threadIDStr)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid thread_id: %v", err)), nil
	}

	usage, err := s.sessions.GetTokenUsage(ctx, id)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load token usage: %v", err)), nil
	}

	resultData, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal token usage: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
