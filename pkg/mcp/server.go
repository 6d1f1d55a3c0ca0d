package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/blockflow/internal/editor"
	"github.com/rendis/blockflow/internal/expressions"
)

// BlockflowServerDeps holds the dependencies for creating a BlockflowServer.
type BlockflowServerDeps struct {
	Editor  *editor.Service
	Query   *expressions.QueryEngine
	Version string
	Logger  *slog.Logger
}

// BlockflowServer wraps an MCP server with the editor tool handlers.
type BlockflowServer struct {
	editor    *editor.Service
	query     *expressions.QueryEngine
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  ChangeNotifier
	mcpServer *server.MCPServer
}

// NewBlockflowServer creates a new BlockflowServer with all tools registered.
func NewBlockflowServer(deps BlockflowServerDeps) *BlockflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	query := deps.Query
	if query == nil {
		query = expressions.NewQueryEngine()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &BlockflowServer{
		editor:   deps.Editor,
		query:    query,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"blockflow",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Blockflow edits block-based workflow definitions as graphs. Use blockflow.create and blockflow.list to manage stored workflows, blockflow.load to open one as a laid-out graph, blockflow.save to store an edited graph, blockflow.convert, blockflow.upgrade and blockflow.validate for documents that are not stored, blockflow.rename to relabel a block, blockflow.diagram to draw a workflow and blockflow.query to run jq over a definition."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *BlockflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler serves the tools over the streamable HTTP transport.
func (s *BlockflowServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *BlockflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *BlockflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: createTool(), Handler: s.handleCreate},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: convertTool(), Handler: s.handleConvert},
		{Tool: renameTool(), Handler: s.handleRename},
		{Tool: upgradeTool(), Handler: s.handleUpgrade},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func createTool() mcp.Tool {
	return mcp.NewTool("blockflow.create",
		mcp.WithDescription("Store a new workflow"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Workflow title")),
		mcp.WithObject("definition", mcp.Description("Definition object (default: empty)")),
		mcp.WithString("definition_text", mcp.Description("Definition as JSON or YAML text, instead of definition")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("blockflow.list",
		mcp.WithDescription("List stored workflows"),
		mcp.WithString("title", mcp.Description("Case-insensitive title substring")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of workflows (default: 50)")),
		mcp.WithNumber("offset", mcp.Description("Number of workflows to skip")),
	)
}

func loadTool() mcp.Tool {
	return mcp.NewTool("blockflow.load",
		mcp.WithDescription("Open a stored workflow as a laid-out graph"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to open")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("blockflow.save",
		mcp.WithDescription("Serialize an edited graph and store it"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to save")),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("Graph with nodes and edges")),
		mcp.WithArray("parameters", mcp.Description("Workflow parameters")),
	)
}

func convertTool() mcp.Tool {
	return mcp.NewTool("blockflow.convert",
		mcp.WithDescription("Convert a definition to a graph or a graph to a definition"),
		mcp.WithString("direction", mcp.Required(),
			mcp.Enum("to_graph", "to_definition"),
			mcp.Description("Conversion direction"),
		),
		mcp.WithObject("definition", mcp.Description("Definition object (to_graph)")),
		mcp.WithString("definition_text", mcp.Description("Definition as JSON or YAML text (to_graph)")),
		mcp.WithObject("graph", mcp.Description("Graph with nodes and edges (to_definition)")),
		mcp.WithArray("parameters", mcp.Description("Workflow parameters (to_definition)")),
	)
}

func renameTool() mcp.Tool {
	return mcp.NewTool("blockflow.rename",
		mcp.WithDescription("Relabel a block and update the references to its output"),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("Graph with nodes and edges")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the block node")),
		mcp.WithString("label", mcp.Required(), mcp.Description("New label")),
		mcp.WithArray("parameters", mcp.Description("Workflow parameters")),
	)
}

func upgradeTool() mcp.Tool {
	return mcp.NewTool("blockflow.upgrade",
		mcp.WithDescription("Upgrade a definition to the current version"),
		mcp.WithObject("definition", mcp.Description("Definition object")),
		mcp.WithString("definition_text", mcp.Description("Definition as JSON or YAML text")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("blockflow.validate",
		mcp.WithDescription("Validate a definition"),
		mcp.WithObject("definition", mcp.Description("Definition object")),
		mcp.WithString("definition_text", mcp.Description("Definition as JSON or YAML text")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("blockflow.diagram",
		mcp.WithDescription("Generate a visual diagram of a workflow. Returns ASCII art, Mermaid flowchart syntax, SVG markup or a base64-encoded PNG image"),
		mcp.WithString("workflow_id", mcp.Description("Stored workflow to draw")),
		mcp.WithObject("definition", mcp.Description("Definition object to draw instead of a stored workflow")),
		mcp.WithString("definition_text", mcp.Description("Definition as JSON or YAML text")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image", "svg"),
			mcp.Description("Output format"),
		),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("blockflow.query",
		mcp.WithDescription("Run a jq query over a definition"),
		mcp.WithString("query", mcp.Required(), mcp.Description(`jq program, e.g. [.blocks[] | .label]`)),
		mcp.WithString("workflow_id", mcp.Description("Stored workflow to query")),
		mcp.WithObject("definition", mcp.Description("Definition object to query instead of a stored workflow")),
		mcp.WithString("definition_text", mcp.Description("Definition as JSON or YAML text")),
	)
}
