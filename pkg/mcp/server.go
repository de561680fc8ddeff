package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowmatic/flowmatic/internal/definitions"
	"github.com/flowmatic/flowmatic/internal/ledger"
	"github.com/flowmatic/flowmatic/pkg/schema"
)

// Orchestrator is the engine surface the MCP tools drive.
type Orchestrator interface {
	SubmitEvent(ctx context.Context, event string, payload map[string]any) ([]string, error)
	TriggerWorkflow(ctx context.Context, workflow string, payload map[string]any) (string, error)
	GetExecution(ctx context.Context, id string) (*schema.Execution, error)
	ListExecutions(ctx context.Context, filter ledger.ExecutionFilter) ([]*schema.Execution, error)
	CancelExecution(ctx context.Context, id, reason string) error
}

// DefinitionSource is the definition store surface the MCP tools drive.
type DefinitionSource interface {
	List() []*schema.WorkflowDefinition
	Get(name string) (*schema.WorkflowDefinition, error)
	Define(ctx context.Context, def *schema.WorkflowDefinition) error
	Reload(ctx context.Context) (*definitions.ReloadReport, error)
}

// FlowmaticServerDeps holds the dependencies for creating a FlowmaticServer.
type FlowmaticServerDeps struct {
	Engine Orchestrator
	Defs   DefinitionSource
	Logger *slog.Logger
}

// FlowmaticServer wraps an MCP server with the workflow tool handlers.
type FlowmaticServer struct {
	engine    Orchestrator
	defs      DefinitionSource
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowmaticServer creates a FlowmaticServer with all tools registered.
func NewFlowmaticServer(deps FlowmaticServerDeps) *FlowmaticServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowmaticServer{
		engine: deps.Engine,
		defs:   deps.Defs,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowmatic",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowmatic is an event-driven workflow orchestration engine. Use flowmatic.submit_event to feed events in, flowmatic.trigger to run a workflow directly, flowmatic.execution to inspect (or cancel) an execution, flowmatic.workflows to list loaded definitions, flowmatic.define to register a workflow, and flowmatic.reload to re-read the definitions directory."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowmaticServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowmaticServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowmaticServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: submitEventTool(), Handler: s.handleSubmitEvent},
		{Tool: triggerTool(), Handler: s.handleTrigger},
		{Tool: executionTool(), Handler: s.handleExecution},
		{Tool: workflowsTool(), Handler: s.handleWorkflows},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: reloadTool(), Handler: s.handleReload},
	}
}

// --- Tool definitions ---

func submitEventTool() mcp.Tool {
	return mcp.NewTool("flowmatic.submit_event",
		mcp.WithDescription("Submit an event; every workflow whose trigger matches starts an execution"),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event name, e.g. email.received")),
		mcp.WithObject("data", mcp.Description("Event payload available to trigger conditions and steps as trigger_data")),
	)
}

func triggerTool() mcp.Tool {
	return mcp.NewTool("flowmatic.trigger",
		mcp.WithDescription("Run a workflow directly, bypassing event matching"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of the workflow to run")),
		mcp.WithObject("data", mcp.Description("Payload available to steps as trigger_data")),
	)
}

func executionTool() mcp.Tool {
	return mcp.NewTool("flowmatic.execution",
		mcp.WithDescription("Inspect one execution by ID, list executions by filter, or cancel a running execution"),
		mcp.WithString("execution_id", mcp.Description("Execution ID to fetch (omit to list)")),
		mcp.WithString("action", mcp.Enum("get", "cancel"), mcp.Description("What to do with execution_id (default: get)")),
		mcp.WithString("reason", mcp.Description("Cancellation reason (action=cancel)")),
		mcp.WithObject("filter", mcp.Description("List filter: workflow, status, since (RFC3339), limit, offset")),
	)
}

func workflowsTool() mcp.Tool {
	return mcp.NewTool("flowmatic.workflows",
		mcp.WithDescription("List loaded workflow definitions, or fetch one by name"),
		mcp.WithString("name", mcp.Description("Workflow name to fetch (omit to list all)")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("flowmatic.define",
		mcp.WithDescription("Register a workflow definition; it is validated, persisted to the definitions directory, and loaded"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object (name, triggers, steps)")),
	)
}

func reloadTool() mcp.Tool {
	return mcp.NewTool("flowmatic.reload",
		mcp.WithDescription("Re-read the definitions directory and atomically swap in the valid definitions"),
	)
}
