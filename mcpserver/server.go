package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	engine "github.com/DevRickLin/feishu-task-engine/internal/mcp"
)

// TaskMCPServer exposes scheduled messages and purge rules as MCP tools
type TaskMCPServer struct {
	server  *mcp.Server
	handler *engine.Handler
}

// NewServer creates a new task MCP server backed by the engine API
func NewServer(handler *engine.Handler, version string) *TaskMCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "feishu-task-engine",
		Version: version,
	}, nil)

	s := &TaskMCPServer{server: server, handler: handler}
	s.registerTools()
	return s
}

// registerTools registers all task tools
func (s *TaskMCPServer) registerTools() {
	h := s.handler

	// Scheduled messages
	addTool(s.server, engine.ToolScheduleMessage, h.ScheduleMessage)
	addTool(s.server, engine.ToolListScheduledMessages, h.ListScheduledMessages)
	addTool(s.server, engine.ToolPauseScheduledMessage, h.PauseScheduledMessage)
	addTool(s.server, engine.ToolResumeScheduledMessage, h.ResumeScheduledMessage)
	addTool(s.server, engine.ToolRemoveScheduledMessage, h.RemoveScheduledMessage)

	// Purge rules
	addTool(s.server, engine.ToolSetPurgeRule, h.SetPurgeRule)
	addTool(s.server, engine.ToolListPurgeRules, h.ListPurgeRules)
	addTool(s.server, engine.ToolPausePurgeRule, h.PausePurgeRule)
	addTool(s.server, engine.ToolResumePurgeRule, h.ResumePurgeRule)
	addTool(s.server, engine.ToolRemovePurgeRule, h.RemovePurgeRule)

	// One-shot purge
	addTool(s.server, engine.ToolPurgeChannel, h.PurgeChannel)
}

// addTool registers a typed handler. Failures are reported inside the
// output's error field so the agent can read them.
func addTool[In, Out any](server *mcp.Server, name string, fn func(context.Context, In) Out) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        name,
		Description: engine.Description(name),
	}, func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		return nil, fn(ctx, input), nil
	})
}

// Run starts the MCP server with stdio transport
func (s *TaskMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GetServer returns the underlying MCP server
func (s *TaskMCPServer) GetServer() *mcp.Server {
	return s.server
}
