package functions

import (
	"context"

	"github.com/m2tx/research_agent/internal/agent"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the declarations as MCP tools taking a single
// required query string.
func NewMCPServer(name, version string, declarations ...*agent.FunctionDeclaration) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)

	for _, fd := range declarations {
		tool := mcp.NewTool(fd.Name,
			mcp.WithDescription(fd.Description),
			mcp.WithString(QueryArg,
				mcp.Required(),
				mcp.Description("The search query"),
			),
		)
		s.AddTool(tool, mcpHandler(fd))
	}

	return s
}

func mcpHandler(fd *agent.FunctionDeclaration) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString(QueryArg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		out, err := fd.FunctionCall(ctx, map[string]any{QueryArg: query})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(out), nil
	}
}
