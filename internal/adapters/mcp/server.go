// Package mcpadapter exposes document search, detail and insights as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	serverName    = "docintel"
	serverVersion = "1.0.0"

	toolSearchDocuments = "search_documents"
	toolGetDocument     = "get_document"
	toolGetInsights     = "get_insights"

	defaultToolSearchLimit = 10
)

type Server struct {
	search    ports.DocumentSearcher
	documents ports.DocumentReader
	insights  ports.InsightsReader
	logger    *slog.Logger
	mcp       *server.MCPServer
}

func New(
	search ports.DocumentSearcher,
	documents ports.DocumentReader,
	insights ports.InsightsReader,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		search:    search,
		documents: documents,
		insights:  insights,
		logger:    logger,
		mcp:       server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false), server.WithRecovery()),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(toolSearchDocuments,
		mcp.WithDescription("Full-text search over analyzed documents. Returns ranked matches with snippets."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Words to look for")),
		mcp.WithNumber("limit", mcp.Description("Maximum results, 1-50"), mcp.Min(1), mcp.Max(50)),
		mcp.WithString("category", mcp.Description("Only documents of this category")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool(toolGetDocument,
		mcp.WithDescription("Document metadata with its risks, opportunities, inconsistencies and related documents."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
	), s.handleGetDocument)

	s.mcp.AddTool(mcp.NewTool(toolGetInsights,
		mcp.WithDescription("Trends, recurring patterns, recommendations and alerts over a period."),
		mcp.WithString("period",
			mcp.Description("Analysis window"),
			mcp.Enum(string(domain.DateRangeToday), string(domain.DateRangeWeek), string(domain.DateRangeMonth),
				string(domain.DateRangeQuarter), string(domain.DateRangeYear)),
		),
	), s.handleInsights)
}

// ServeStdio serves the tools over stdin/stdout until ctx is done or the input closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve mcp stdio: %w", err)
	}
	return nil
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	search := domain.SearchQuery{
		Text:  query,
		Limit: req.GetInt("limit", defaultToolSearchLimit),
	}
	if category := strings.TrimSpace(req.GetString("category", "")); category != "" {
		search.Filter.Categories = []string{category}
	}

	resp, err := s.search.Search(ctx, search)
	if err != nil {
		return s.toolError(toolSearchDocuments, err), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleGetDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.documents.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return s.toolError(toolGetDocument, err), nil
	}
	return jsonResult(detail)
}

func (s *Server) handleInsights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	period := domain.DateRange(strings.ToLower(strings.TrimSpace(req.GetString("period", ""))))
	insights, err := s.insights.Insights(ctx, period)
	if err != nil {
		return s.toolError(toolGetInsights, err), nil
	}
	return jsonResult(insights)
}

// toolError reports caller mistakes verbatim and hides internal failures behind a generic message.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrDocumentNotFound):
		return mcp.NewToolResultError(err.Error())
	case domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError("temporarily unavailable, retry later")
	default:
		s.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error")
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
