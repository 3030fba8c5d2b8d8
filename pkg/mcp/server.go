package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/internal/store"
	"github.com/rendis/claimflow/pkg/schema"
)

// CaseRunner is the orchestration surface the server drives. Satisfied by
// orchestrator.Runner, which serializes runs per case.
type CaseRunner interface {
	Process(ctx context.Context, caseData schema.Context, transcript *schema.Transcript, existing schema.Context) (*schema.Result, error)
	Resume(ctx context.Context, caseID string, evidence *schema.Evidence) (*schema.Result, error)
}

// ClaimsServerDeps holds the dependencies for creating a ClaimsServer.
// Registry and Events are optional; the status and sessions tools degrade
// gracefully without them. Lookups is optional; when set, the business-rule
// lookup tools are registered alongside the case tools.
type ClaimsServerDeps struct {
	Runner   CaseRunner
	Sessions session.Store
	Registry store.Registry
	Events   *store.EventLog
	Lookups  *Lookups
	Logger   *slog.Logger
}

// ClaimsServer wraps an MCP server with the claims tool handlers.
type ClaimsServer struct {
	runner    CaseRunner
	store     session.Store
	registry  store.Registry
	events    *store.EventLog
	lookups   *Lookups
	adjusters *adjusterSessions
	notifier  AdjusterNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewClaimsServer creates a ClaimsServer with the case tools registered,
// plus the lookup tools when deps.Lookups is set.
func NewClaimsServer(deps ClaimsServerDeps) *ClaimsServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &ClaimsServer{
		runner:    deps.Runner,
		store:     deps.Sessions,
		registry:  deps.Registry,
		events:    deps.Events,
		lookups:   deps.Lookups,
		adjusters: newAdjusterSessions(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"claimflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Claimflow orchestrates insurance claim decisions. Use claims.process to submit a claim, claims.resume to continue a paused claim with new evidence, claims.status to inspect a case, and claims.sessions to list persisted cases. The claims.lookup.* tools expose policy, history, fraud, vendor, medical, document, and external-signal checks."),
	)

	mcpSrv.AddTools(s.tools()...)
	if s.lookups != nil {
		mcpSrv.AddTools(s.lookupTools()...)
	}
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.adjusters)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *ClaimsServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *ClaimsServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *ClaimsServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: processTool(), Handler: s.handleProcess},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: sessionsTool(), Handler: s.handleSessions},
	}
}

// --- Tool definitions ---

func processTool() mcp.Tool {
	return mcp.NewTool("claims.process",
		mcp.WithDescription("Submit an insurance claim for orchestrated processing"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Freeform claim submission text")),
		mcp.WithString("case_id", mcp.Description("Case ID (generated when omitted)")),
		mcp.WithString("policy_number", mcp.Description("Policy number the claim is filed against")),
		mcp.WithString("claimant", mcp.Description("Name of the claimant")),
		mcp.WithString("claim_type", mcp.Description("Claim type, e.g. auto or property")),
		mcp.WithObject("claim", mcp.Description("Additional structured claim fields merged into the case context")),
		mcp.WithString("adjuster_id", mcp.Description("ID of the submitting adjuster, used for pause notifications")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("claims.resume",
		mcp.WithDescription("Resume a paused claim with new evidence"),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("ID of the paused case")),
		mcp.WithObject("evidence", mcp.Description("New evidence: {documents: [{type, name, content}], notes: [{type, content}]}")),
		mcp.WithString("adjuster_id", mcp.Description("ID of the submitting adjuster, used for pause notifications")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("claims.status",
		mcp.WithDescription("Get the persisted state and timeline of a case"),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("ID of the case to inspect")),
	)
}

func sessionsTool() mcp.Tool {
	return mcp.NewTool("claims.sessions",
		mcp.WithDescription("List persisted case sessions"),
		mcp.WithObject("filter", mcp.Description("Optional filter: {status, limit}")),
	)
}
