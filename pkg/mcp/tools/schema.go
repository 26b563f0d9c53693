// Package tools provides the MCP tools of the schema graph service.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/llm"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/services"
)

// SchemaToolDeps contains dependencies for the schema tools.
type SchemaToolDeps struct {
	Chat   services.ChatService
	Lookup services.SchemaLookupService
	Usage  services.TokenUsageService
	Logger *zap.Logger
}

// RegisterSchemaTools registers ask_schema, find_schema_object and token_usage.
func RegisterSchemaTools(s *server.MCPServer, deps *SchemaToolDeps) {
	registerAskSchemaTool(s, deps)
	registerFindSchemaObjectTool(s, deps)
	registerTokenUsageTool(s, deps)
}

func registerAskSchemaTool(s *server.MCPServer, deps *SchemaToolDeps) {
	tool := mcp.NewTool(
		"ask_schema",
		mcp.WithDescription(
			"Answer a natural-language question about the database schema. "+
				"Table, view and field names in the question are resolved against the knowledge graph "+
				"and their immediate relations are used as context. Nothing is stored in chat history.",
		),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question, in any language")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		question = strings.TrimSpace(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "question must not be empty"), nil
		}

		answer := deps.Chat.Ask(llm.WithPurpose(ctx, llm.PurposeMCP), question)
		deps.Logger.Debug("ask_schema answered", zap.Int("matched", len(answer.Matched)))
		return jsonResult(answer)
	})
}

func registerFindSchemaObjectTool(s *server.MCPServer, deps *SchemaToolDeps) {
	tool := mcp.NewTool(
		"find_schema_object",
		mcp.WithDescription(
			"Look up tables, views, datasets and fields by exact physical or logical name. "+
				"Each match is returned with its parents, children, fields or owner.",
		),
		mcp.WithString("name", mcp.Required(), mcp.Description("Physical or logical name to look up")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if strings.TrimSpace(name) == "" {
			return NewErrorResult("invalid_parameters", "name must not be empty"), nil
		}

		matches, err := deps.Lookup.Describe(ctx, name)
		if err != nil {
			if code := errorCode(err); code != "" {
				return NewErrorResult(code, err.Error()), nil
			}
			return nil, err
		}
		if len(matches) == 0 {
			return NewErrorResult("not_found", fmt.Sprintf("no schema object or field named %q", name)), nil
		}

		return jsonResult(struct {
			Matches []models.EntityDescription `json:"matches"`
			Count   int                        `json:"count"`
		}{Matches: matches, Count: len(matches)})
	})
}

func registerTokenUsageTool(s *server.MCPServer, deps *SchemaToolDeps) {
	tool := mcp.NewTool(
		"token_usage",
		mcp.WithDescription("Report model token consumption: running totals, per-provider and per-purpose breakdowns."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := deps.Usage.Report(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read token usage: %w", err)
		}
		return jsonResult(report)
	})
}
