// Package mcp serves the tool registry over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/noteindex/internal/tools"
)

// ServerName is reported to MCP clients during initialize.
const ServerName = "noteindex"

// ContextFunc decorates the context of each tool call, e.g. with the
// workspace or user the session is bound to.
type ContextFunc func(ctx context.Context) context.Context

// Option configures a Server.
type Option func(*Server)

// WithContextFunc sets the per-call context decorator.
func WithContextFunc(fn ContextFunc) Option {
	return func(s *Server) { s.contextFn = fn }
}

// Server exposes every registry tool as a read-only MCP tool.
type Server struct {
	registry  *tools.Registry
	mcp       *server.MCPServer
	contextFn ContextFunc
}

// NewServer builds an MCP server over reg. Tools registered later are not
// picked up.
func NewServer(reg *tools.Registry, version string, opts ...Option) (*Server, error) {
	s := &Server{
		registry: reg,
		mcp:      server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, def := range reg.Definitions() {
		tool, err := toMCPTool(def)
		if err != nil {
			return nil, err
		}
		s.mcp.AddTool(tool, s.handler(def.Name))
	}
	slog.Debug("mcp: tools registered", "count", reg.Count())
	return s, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in/out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		if s.contextFn != nil {
			ctx = s.contextFn(ctx)
		}
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		res := s.registry.Execute(ctx, name, args)
		if res.IsError {
			return mcpgo.NewToolResultError(res.ForLLM), nil
		}
		return mcpgo.NewToolResultText(res.ForLLM), nil
	}
}

var readOnly = mcpgo.ToolAnnotation{
	ReadOnlyHint:    mcpgo.ToBoolPtr(true),
	DestructiveHint: mcpgo.ToBoolPtr(false),
	IdempotentHint:  mcpgo.ToBoolPtr(true),
	OpenWorldHint:   mcpgo.ToBoolPtr(false),
}

// toMCPTool converts a registry definition, passing its JSON schema through.
func toMCPTool(def tools.Definition) (mcpgo.Tool, error) {
	params := def.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	schema, err := json.Marshal(params)
	if err != nil {
		return mcpgo.Tool{}, fmt.Errorf("mcp: schema for %s: %w", def.Name, err)
	}
	tool := mcpgo.NewToolWithRawSchema(def.Name, def.Description, schema)
	tool.Annotations = readOnly
	return tool, nil
}
