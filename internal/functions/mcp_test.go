package functions

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = "web_search"
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestMCPHandler(t *testing.T) {
	tool := &stubTool{name: "web_search", out: "Title: Go\nURL: https://go.dev"}
	handler := mcpHandler(CreateWebSearchFunctionDeclaration(tool))

	res, err := handler(context.Background(), callRequest(map[string]any{"query": "golang"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Title: Go\nURL: https://go.dev", resultText(t, res))
	assert.Equal(t, []string{"golang"}, tool.calls)
}

func TestMCPHandlerErrors(t *testing.T) {
	tool := &stubTool{name: "web_search", err: errors.New("tavily http 401")}
	handler := mcpHandler(CreateWebSearchFunctionDeclaration(tool))

	res, err := handler(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, tool.calls)

	res, err = handler(context.Background(), callRequest(map[string]any{"query": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "tavily http 401", resultText(t, res))
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer("research-agent", "test", Research(
		&stubTool{name: "paper_search"},
		&stubTool{name: "encyclopedia_search"},
		&stubTool{name: "web_search"},
	)...)
	assert.NotNil(t, s)
}
