package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/editor"
	"github.com/rendis/nodeflow/internal/feeds"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/internal/validation"
)

// FlowServerDeps holds the dependencies for creating a FlowServer.
type FlowServerDeps struct {
	Editor    *editor.Editor
	Validator *validation.GraphValidator
	Feeds     *feeds.Scheduler
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// FlowServer wraps an MCP server with graph-editing tool handlers.
type FlowServer struct {
	editor    *editor.Editor
	validator *validation.GraphValidator
	feeds     *feeds.Scheduler
	hub       streaming.EventHub
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowServer creates a FlowServer with all tools registered.
func NewFlowServer(deps FlowServerDeps) *FlowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowServer{
		editor:    deps.Editor,
		validator: deps.Validator,
		feeds:     deps.Feeds,
		hub:       deps.Hub,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"nodeflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Nodeflow is a live computation-graph calculator. Use graph.edit to add/wire/update nodes, graph.state to read the evaluated graph, graph.undo and graph.redo to move through edit history, graph.load to replace the graph from a document, graph.validate to check a document without loading it, graph.diagram for a Mermaid rendering, and feed.add/feed.remove/feed.list to drive input nodes on a schedule."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: editTool(), Handler: s.handleEdit},
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: stateTool(), Handler: s.handleState},
		{Tool: undoTool(), Handler: s.handleUndo},
		{Tool: redoTool(), Handler: s.handleRedo},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: feedAddTool(), Handler: s.handleFeedAdd},
		{Tool: feedRemoveTool(), Handler: s.handleFeedRemove},
		{Tool: feedListTool(), Handler: s.handleFeedList},
	}
}

// --- Tool definitions ---

func editTool() mcp.Tool {
	return mcp.NewTool("graph.edit",
		mcp.WithDescription("Apply one edit command to the live graph. Every successful edit is archived for undo and re-evaluates the graph"),
		mcp.WithString("command", mcp.Required(),
			mcp.Enum("add_node", "remove_node", "connect", "disconnect", "set_value", "set_operation", "set_formula", "move_node"),
			mcp.Description("The edit command to apply"),
		),
		mcp.WithString("node_id", mcp.Description("Target node (remove_node, set_value, set_operation, set_formula, move_node)")),
		mcp.WithString("edge_id", mcp.Description("Target edge (disconnect)")),
		mcp.WithString("kind",
			mcp.Enum("input", "operator", "output"),
			mcp.Description("Node kind (add_node)"),
		),
		mcp.WithString("operation",
			mcp.Enum("add", "subtract", "multiply", "divide", "formula"),
			mcp.Description("Operator operation (add_node, set_operation)"),
		),
		mcp.WithString("expression", mcp.Description("Formula expression over operands a and b (add_node, set_formula)")),
		mcp.WithString("lang",
			mcp.Enum("expr", "cel", "jq"),
			mcp.Description("Formula language (default: expr)"),
		),
		mcp.WithNumber("value", mcp.Description("Entered value (add_node, set_value)")),
		mcp.WithString("source", mcp.Description("Source node (connect)")),
		mcp.WithString("target", mcp.Description("Target node (connect)")),
		mcp.WithString("port",
			mcp.Enum("a", "b"),
			mcp.Description("Operand port on the target; omit when the target is an output (connect)"),
		),
		mcp.WithNumber("x", mcp.Description("Canvas X position (add_node, move_node)")),
		mcp.WithNumber("y", mcp.Description("Canvas Y position (add_node, move_node)")),
	)
}

func loadTool() mcp.Tool {
	return mcp.NewTool("graph.load",
		mcp.WithDescription("Validate a graph document and replace the live graph with it. The prior graph stays one undo away"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Graph document with nodes and edges")),
	)
}

func stateTool() mcp.Tool {
	return mcp.NewTool("graph.state",
		mcp.WithDescription("Read the live graph with all computed values, plus undo/redo depths"),
	)
}

func undoTool() mcp.Tool {
	return mcp.NewTool("graph.undo",
		mcp.WithDescription("Step back to the previous graph state"),
	)
}

func redoTool() mcp.Tool {
	return mcp.NewTool("graph.redo",
		mcp.WithDescription("Step forward to the next graph state after an undo"),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("graph.validate",
		mcp.WithDescription("Check a graph document without loading it. Returns errors and warnings"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Graph document with nodes and edges")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("graph.diagram",
		mcp.WithDescription("Render the live graph as Mermaid flowchart syntax with computed values inline"),
	)
}

func feedAddTool() mcp.Tool {
	return mcp.NewTool("feed.add",
		mcp.WithDescription("Attach a scheduled value source to an input node. On each due tick the source's next value is applied as a normal edit"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Input node to drive")),
		mcp.WithString("schedule", mcp.Required(), mcp.Description("Cron expression, optional leading seconds field, @every descriptors supported")),
		mcp.WithString("source", mcp.Required(),
			mcp.Enum("constant", "counter", "random", "sine"),
			mcp.Description("Builtin value generator"),
		),
		mcp.WithObject("params", mcp.Description("Source parameters: value (constant), start/step (counter), min/max (random), amplitude/period (sine)")),
	)
}

func feedRemoveTool() mcp.Tool {
	return mcp.NewTool("feed.remove",
		mcp.WithDescription("Detach a scheduled feed"),
		mcp.WithString("feed_id", mcp.Required(), mcp.Description("Feed to remove")),
	)
}

func feedListTool() mcp.Tool {
	return mcp.NewTool("feed.list",
		mcp.WithDescription("List registered feeds with their schedules and last values"),
	)
}
