package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
	"github.com/kirillkom/meta-search/internal/observability/metrics"
)

const serverVersion = "1.0.0"

// Server exposes the search pipeline as MCP tools over stdio. Both adapters
// sit on the same inbound ports, so a tool call and an HTTP request go
// through identical semantics.
type Server struct {
	search  ports.SearchService
	admin   ports.AdminService
	logger  *slog.Logger
	metrics *metrics.MCPServerMetrics
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.MCPServerMetrics
}

func NewServer(search ports.SearchService, admin ports.AdminService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		search:  search,
		admin:   admin,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// MCPServer assembles the tool registry.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		"meta-search",
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	srv.AddTool(searchToolSpec(), s.handleSearch)
	srv.AddTool(providerStatusToolSpec(), s.handleProviderStatus)
	return srv
}

// ServeStdio blocks until stdin closes or ctx is canceled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.MCPServer())
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchToolSpec() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Search across the configured providers and return deduplicated, ranked results."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text."),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum merged results to return."),
		),
		mcp.WithString("content_type",
			mcp.Description("Override the analyzer's content type detection."),
			mcp.Enum("factual", "academic", "technical", "news", "commercial", "educational", "mixed"),
		),
		mcp.WithArray("providers",
			mcp.Description("Explicit provider ids; skips provider scoring."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("budget",
			mcp.Description("Spending ceiling for this query in USD."),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Overall timeout in milliseconds."),
		),
		mcp.WithString("strategy",
			mcp.Description("Dispatch strategy; chosen automatically when omitted."),
			mcp.Enum("parallel", "cascade"),
		),
	)
}

func providerStatusToolSpec() mcp.Tool {
	return mcp.NewTool("provider_status",
		mcp.WithDescription("Report rate limit usage, spend and circuit breaker state for every configured provider."),
	)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := domain.SearchQuery{
		Text:        text,
		MaxResults:  request.GetInt("max_results", 0),
		ContentType: domain.ContentType(request.GetString("content_type", "")),
		Providers:   request.GetStringSlice("providers", nil),
		Strategy:    domain.Strategy(request.GetString("strategy", "")),
	}
	if budget := request.GetFloat("budget", 0); budget > 0 {
		ceiling := decimal.NewFromFloat(budget)
		query.Budget = &ceiling
	}
	if timeoutMS := request.GetInt("timeout_ms", 0); timeoutMS > 0 {
		query.Timeout = time.Duration(timeoutMS) * time.Millisecond
	}

	started := time.Now()
	response, err := s.search.Search(ctx, query)
	if err != nil {
		s.recordToolCall("search", errorLabel(err), time.Since(started))
		s.logger.Warn("search tool failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.recordToolCall("search", "success", time.Since(started))
	if s.metrics != nil {
		s.metrics.RecordSearch("mcp", string(response.Strategy), "success", response.CacheTier, response.TotalResults, time.Since(started))
	}

	payload, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encode response: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleProviderStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	statuses := s.admin.ProviderStatuses(ctx)
	payload, err := json.MarshalIndent(map[string]any{"providers": statuses}, "", "  ")
	if err != nil {
		s.recordToolCall("provider_status", "error", time.Since(started))
		return mcp.NewToolResultError("encode statuses: " + err.Error()), nil
	}
	s.recordToolCall("provider_status", "success", time.Since(started))
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) recordToolCall(tool, status string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordToolCall("mcp", tool, status, duration)
}

func errorLabel(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return "invalid"
	case domain.IsKind(err, domain.ErrBudgetExhausted):
		return "budget"
	case domain.IsKind(err, domain.ErrProvidersThrottled):
		return "throttled"
	case domain.IsKind(err, domain.ErrNoProviders):
		return "no_providers"
	default:
		return "error"
	}
}
