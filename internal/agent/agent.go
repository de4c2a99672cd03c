// Package agent runs a research question through a language model that may
// request lookups from a fixed set of tools.
//
// A run is a two-node graph: "generate" asks the model for the next message
// and "tools" executes the tool calls that message requested. By default the
// run ends after one round of tool use; WithMaxRounds lets the model react to
// tool results before the run ends.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m2tx/research_agent/internal/model"
	"github.com/pkg/errors"
)

const (
	defaultMaxRounds   = 1
	defaultToolTimeout = 30 * time.Second
)

var (
	// ErrGeneration marks a failed call to the language model.
	ErrGeneration = errors.New("generation failed")
	// ErrUnknownTool is returned when the model names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Generator produces the next assistant message for a conversation. The
// returned message either carries a final answer or one or more tool calls.
type Generator interface {
	Generate(ctx context.Context, history []model.Message) (model.Message, error)
}

// FunctionDeclaration describes a tool the model may call.
type FunctionDeclaration struct {
	Name             string
	Description      string
	ParametersSchema any
	FunctionCall     FunctionCallFn
}

type FunctionCallFn func(ctx context.Context, args map[string]any) (string, error)

// State is the position of a run in the tool-calling graph.
type State string

const (
	StateGenerate     State = "GENERATE"
	StateExecuteTools State = "EXECUTE_TOOLS"
	StateDone         State = "DONE"
)

// Result is the outcome of one run.
type Result struct {
	Messages []model.Message `json:"messages"`
	State    State           `json:"state"`
	// Rounds counts the tool rounds that were executed.
	Rounds int `json:"rounds"`
}

type Agent struct {
	generator     Generator
	functions     []*FunctionDeclaration
	functionsMap  map[string]*FunctionDeclaration
	maxRounds     int
	parallelTools bool
	toolTimeout   time.Duration
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxRounds sets how many tool rounds a run may execute. After the last
// round the run ends without asking the model again.
func WithMaxRounds(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxRounds = n
		}
	}
}

// WithParallelTools executes the tool calls of one round concurrently.
// Results are still appended in request order.
func WithParallelTools(enabled bool) Option {
	return func(a *Agent) { a.parallelTools = enabled }
}

// WithToolTimeout bounds each tool call. Zero disables the bound.
func WithToolTimeout(d time.Duration) Option {
	return func(a *Agent) { a.toolTimeout = d }
}

func New(generator Generator, opts ...Option) *Agent {
	a := &Agent{
		generator:     generator,
		functionsMap:  make(map[string]*FunctionDeclaration),
		maxRounds:     defaultMaxRounds,
		parallelTools: true,
		toolTimeout:   defaultToolTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) AddFunctionCall(functionDeclaration *FunctionDeclaration) error {
	if functionDeclaration == nil {
		return errors.New("function declaration cannot be nil")
	}

	if functionDeclaration.Name == "" {
		return errors.New("function name cannot be empty")
	}

	if functionDeclaration.FunctionCall == nil {
		return errors.New("function call implementation cannot be nil")
	}

	if _, exists := a.functionsMap[functionDeclaration.Name]; exists {
		return errors.Errorf("function %s already registered", functionDeclaration.Name)
	}

	a.functionsMap[functionDeclaration.Name] = functionDeclaration
	a.functions = append(a.functions, functionDeclaration)

	return nil
}

// Declarations returns the registered tools in registration order.
func (a *Agent) Declarations() []*FunctionDeclaration {
	out := make([]*FunctionDeclaration, len(a.functions))
	copy(out, a.functions)
	return out
}

// Run answers question with a fresh conversation. On a generation failure
// the messages produced so far are returned together with an error matching
// ErrGeneration.
func (a *Agent) Run(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	run := &runState{
		conversation: model.NewConversation(model.UserMessage(question)),
		state:        StateGenerate,
	}

	slog.Info("research run started", "max_rounds", a.maxRounds, "tools", len(a.functions))

	err := a.newFlow().Run(ctx, newSharedStore(run))

	result := &Result{
		Messages: run.conversation.Messages(),
		State:    run.state,
		Rounds:   run.rounds,
	}

	if err != nil {
		if run.genErr != nil {
			err = run.genErr
		}
		slog.Error("research run failed", "state", result.State, "messages", len(result.Messages), "err", err)
		return result, err
	}

	slog.Info("research run finished",
		"state", result.State,
		"rounds", result.Rounds,
		"messages", len(result.Messages),
		"duration", time.Since(start))

	return result, nil
}

// GenerationError wraps a failed model call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrGeneration, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

func (a *Agent) handleFunctionCall(ctx context.Context, functionName string, args map[string]any) (string, error) {
	if fd, exists := a.functionsMap[functionName]; exists {
		return fd.FunctionCall(ctx, args)
	}

	return "", errors.Wrapf(ErrUnknownTool, "%q", functionName)
}

// callTool runs one tool call and always produces its result message;
// failures are reported in the message content.
func (a *Agent) callTool(ctx context.Context, call model.ToolCall) model.Message {
	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := a.handleFunctionCall(ctx, call.Name, call.Args)
	if err != nil {
		slog.Warn("tool call failed", "tool", call.Name, "id", call.ID, "duration", time.Since(start), "err", err)
		if errors.Is(err, ErrUnknownTool) {
			return model.ToolResult(call, fmt.Sprintf("Error: unknown tool %q", call.Name))
		}
		return model.ToolResult(call, fmt.Sprintf("Error: %s: %v", call.Name, err))
	}

	slog.Info("tool call", "tool", call.Name, "id", call.ID, "duration", time.Since(start), "chars", len(out))
	return model.ToolResult(call, out)
}
