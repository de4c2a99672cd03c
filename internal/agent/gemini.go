package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/m2tx/research_agent/internal/model"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// localCallIDPrefix marks tool-call ids assigned locally because the model
// did not send one. They are not sent back to the model.
const localCallIDPrefix = "local_"

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client            *genai.Client
	model             string
	systemInstruction string
	tools             []*genai.Tool
}

func NewGemini(client *genai.Client, model string, systemInstruction string) *Gemini {
	return &Gemini{
		client:            client,
		model:             model,
		systemInstruction: systemInstruction,
	}
}

// BindTools makes the declared functions available to the model.
func (g *Gemini) BindTools(declarations []*FunctionDeclaration) *Gemini {
	functions := make([]*genai.FunctionDeclaration, 0, len(declarations))
	for _, fd := range declarations {
		functions = append(functions, &genai.FunctionDeclaration{
			Name:                 fd.Name,
			Description:          fd.Description,
			ParametersJsonSchema: fd.ParametersSchema,
		})
	}

	g.tools = nil
	if len(functions) > 0 {
		g.tools = []*genai.Tool{{FunctionDeclarations: functions}}
	}
	return g
}

func (g *Gemini) Generate(ctx context.Context, history []model.Message) (model.Message, error) {
	config := &genai.GenerateContentConfig{Tools: g.tools}
	if g.systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: g.systemInstruction}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGenAIContents(history), config)
	if err != nil {
		return model.Message{}, errors.Wrap(err, "gemini: generate content")
	}

	return fromGenAIResponse(resp)
}

// toGenAIContents converts the conversation to Gemini contents. Consecutive
// tool results are grouped into a single user turn, which is how Gemini
// expects the answers to parallel function calls.
func toGenAIContents(history []model.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleTool:
			part := &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       remoteCallID(m.ToolCallID),
					Name:     m.Name,
					Response: map[string]any{"output": m.Content},
				},
			}
			if n := len(contents); n > 0 && isFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})

		case model.RoleAssistant:
			c := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				c.Parts = append(c.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   remoteCallID(tc.ID),
						Name: tc.Name,
						Args: tc.Args,
					},
					ThoughtSignature: tc.Signature,
				})
			}
			contents = append(contents, c)

		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return contents
}

func isFunctionResponses(c *genai.Content) bool {
	if c.Role != genai.RoleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

// fromGenAIResponse converts the first candidate into an assistant message.
func fromGenAIResponse(resp *genai.GenerateContentResponse) (model.Message, error) {
	if resp == nil {
		return model.Message{}, errors.New("gemini: empty response")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return model.Message{}, errors.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return model.Message{}, errors.New("gemini: response has no candidates")
	}

	msg := model.Message{Role: model.RoleAssistant}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}

		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = localCallIDPrefix + uuid.NewString()
			}
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Args:      part.FunctionCall.Args,
				Signature: part.ThoughtSignature,
			})
			continue
		}

		text.WriteString(part.Text)
	}
	msg.Content = text.String()

	return msg, nil
}

func remoteCallID(id string) string {
	if strings.HasPrefix(id, localCallIDPrefix) {
		return ""
	}
	return id
}
