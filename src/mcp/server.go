// Package mcp exposes build-time runs as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"buildtime-agent/src/config"
	"buildtime-agent/src/contracts"
	"buildtime-agent/src/logger"
	"buildtime-agent/src/pipeline"
	"buildtime-agent/src/store"
	"buildtime-agent/src/stream"
)

// Server is the MCP server for buildtime.
type Server struct {
	mcpServer *server.MCPServer
	cfg       *config.Config
	opener    stream.Opener
	store     store.Store
	logger    logger.Logger
}

// NewServer creates an MCP server. cfg supplies defaults for tool arguments;
// runs are fetched through opener and persisted in st.
func NewServer(cfg *config.Config, opener stream.Opener, st store.Store, log logger.Logger) *Server {
	s := server.NewMCPServer(
		"buildtime",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		cfg:       cfg,
		opener:    opener,
		store:     st,
		logger:    log,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	distributionTool := mcp.NewTool("build_time_distribution",
		mcp.WithDescription("Stream builds from the build export API and return the build time distribution: percentiles in milliseconds plus run statistics. The run is saved; use get_run_report with the returned run_id to fetch it again with per-build detail."),
		mcp.WithString("hours",
			mcp.Description(`Look back this many hours, or "all" (default: configured value, 24)`),
		),
		mcp.WithString("since",
			mcp.Description("RFC 3339 start time; overrides hours"),
		),
		mcp.WithString("tag",
			mcp.Description("Only builds carrying this tag"),
		),
		mcp.WithString("custom_value",
			mcp.Description("Only builds with this custom value, as key:value"),
		),
		mcp.WithBoolean("success_only",
			mcp.Description("Only successful builds"),
		),
		mcp.WithNumber("concurrency",
			mcp.Description("Build event feeds open at once (default: 5)"),
		),
	)

	reportTool := mcp.NewTool("get_run_report",
		mcp.WithDescription("Get a saved run report by run_id, optionally with every accepted build."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID from build_time_distribution or list_runs"),
		),
		mcp.WithBoolean("include_builds",
			mcp.Description("Include accepted builds with durations, tags and custom values"),
		),
	)

	listTool := mcp.NewTool("list_runs",
		mcp.WithDescription("List saved runs, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Max runs to return (default: 20)"),
		),
	)

	s.mcpServer.AddTool(distributionTool, s.handleDistribution)
	s.mcpServer.AddTool(reportTool, s.handleGetRunReport)
	s.mcpServer.AddTool(listTool, s.handleListRuns)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleDistribution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := *s.cfg
	cfg.Hours = request.GetString("hours", cfg.Hours)
	cfg.Since = request.GetString("since", cfg.Since)
	cfg.Tag = request.GetString("tag", cfg.Tag)
	cfg.CustomValue = request.GetString("custom_value", cfg.CustomValue)
	cfg.SuccessOnly = request.GetBool("success_only", cfg.SuccessOnly)
	cfg.Concurrency = request.GetInt("concurrency", cfg.Concurrency)

	opts, err := pipeline.OptionsFromConfig(&cfg, time.Now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts = append(opts,
		pipeline.WithLogger(s.logger),
		pipeline.WithSinks(pipeline.NewStoreSink(s.store)),
	)

	result, err := pipeline.New(s.opener, opts...).Run(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return jsonResult(result.Report())
}

func (s *Server) handleGetRunReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}

	report, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", runID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load run: %v", err)), nil
	}

	response := RunResponse{RunReport: report}
	if request.GetBool("include_builds", false) {
		builds, err := s.store.GetBuilds(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load builds: %v", err)), nil
		}
		response.Builds = builds
	}
	return jsonResult(response)
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, summarize(run))
	}
	return jsonResult(summaries)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func summarize(run contracts.RunReport) RunSummary {
	summary := RunSummary{
		RunID:     run.RunID,
		StartedAt: run.StartedAt,
		Status:    run.Status,
		Drained:   run.Drained,
		Filter:    run.Filter,
		Count:     run.Count,
	}
	for _, p := range run.Percentiles {
		switch p.Percentile {
		case 50:
			summary.P50Ms = p.ValueMs
		case 99:
			summary.P99Ms = p.ValueMs
		}
	}
	return summary
}
