package functions

import (
	"context"

	"github.com/m2tx/research_agent/internal/agent"
	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/tools"
)

// QueryArg is the single argument every search function takes.
const QueryArg = "query"

func queryParametersSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			QueryArg: map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{QueryArg},
	}
}

// CreateSearchFunctionDeclaration exposes a text-in, text-out tool to the
// agent under the tool's own name.
func CreateSearchFunctionDeclaration(t tools.Tool, queryDescription string) *agent.FunctionDeclaration {
	return &agent.FunctionDeclaration{
		Name:             t.Name(),
		Description:      t.Description(),
		ParametersSchema: queryParametersSchema(queryDescription),
		FunctionCall: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := queryFrom(args)
			if err != nil {
				return "", err
			}
			return t.Call(ctx, query)
		},
	}
}

// queryFrom extracts the query argument. An empty string is passed through
// as is; the tool decides what it means.
func queryFrom(args map[string]any) (string, error) {
	v, ok := args[QueryArg]
	if !ok {
		return "", errors.New("query argument is required")
	}
	query, ok := v.(string)
	if !ok {
		return "", errors.Errorf("query argument must be a string, got %T", v)
	}
	return query, nil
}
