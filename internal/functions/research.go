package functions

import (
	"github.com/m2tx/research_agent/internal/agent"
	"github.com/tmc/langchaingo/tools"
)

func CreatePaperSearchFunctionDeclaration(t tools.Tool) *agent.FunctionDeclaration {
	return CreateSearchFunctionDeclaration(t, "Search terms for arXiv, or one or more arXiv identifiers such as 1605.08386")
}

func CreateEncyclopediaSearchFunctionDeclaration(t tools.Tool) *agent.FunctionDeclaration {
	return CreateSearchFunctionDeclaration(t, "The subject to look up on Wikipedia, e.g. Retrieval-augmented generation")
}

func CreateWebSearchFunctionDeclaration(t tools.Tool) *agent.FunctionDeclaration {
	return CreateSearchFunctionDeclaration(t, "The web search query")
}

// Research bundles the paper, encyclopedia and web search declarations, in
// that order.
func Research(papers, encyclopedia, web tools.Tool) []*agent.FunctionDeclaration {
	return []*agent.FunctionDeclaration{
		CreatePaperSearchFunctionDeclaration(papers),
		CreateEncyclopediaSearchFunctionDeclaration(encyclopedia),
		CreateWebSearchFunctionDeclaration(web),
	}
}
