package agent

import (
	"context"

	"github.com/m2tx/research_agent/internal/model"
	"github.com/mark3labs/flyt"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	actionTools    flyt.Action = "tools"
	actionGenerate flyt.Action = "generate"
	actionDone     flyt.Action = "done"

	keyRun = "run"
)

// runState is the per-run data shared by the graph nodes.
type runState struct {
	conversation *model.Conversation
	state        State
	rounds       int
	genErr       *GenerationError
}

type generatePrep struct {
	run     *runState
	history []model.Message
}

func newSharedStore(run *runState) *flyt.SharedStore {
	shared := flyt.NewSharedStore()
	shared.Set(keyRun, run)
	return shared
}

func runFrom(shared *flyt.SharedStore) (*runState, error) {
	v, ok := shared.Get(keyRun)
	if !ok {
		return nil, errors.New("graph: run state missing from shared store")
	}
	run, ok := v.(*runState)
	if !ok {
		return nil, errors.Errorf("graph: unexpected run state type %T", v)
	}
	return run, nil
}

// newFlow builds the graph for a single run. Nodes are not shared between
// runs.
//
//	generate --tools--> tools --generate--> generate   (only when maxRounds > 1)
//	generate --done-->  end
//	tools    --done-->  end
func (a *Agent) newFlow() *flyt.Flow {
	generate := &generateNode{BaseNode: flyt.NewBaseNode(), agent: a}
	tools := &toolsNode{BaseNode: flyt.NewBaseNode(), agent: a}

	flow := flyt.NewFlow(generate)
	flow.Connect(generate, actionTools, tools)
	if a.maxRounds > 1 {
		flow.Connect(tools, actionGenerate, generate)
	}
	return flow
}

type generateNode struct {
	*flyt.BaseNode
	agent *Agent
}

func (n *generateNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	run, err := runFrom(shared)
	if err != nil {
		return nil, err
	}
	run.state = StateGenerate
	return generatePrep{run: run, history: run.conversation.Messages()}, nil
}

func (n *generateNode) Exec(ctx context.Context, prepResult any) (any, error) {
	prep := prepResult.(generatePrep)

	msg, err := n.agent.generator.Generate(ctx, prep.history)
	if err != nil {
		prep.run.genErr = &GenerationError{Err: err}
		return nil, prep.run.genErr
	}

	msg.Role = model.RoleAssistant
	return msg, nil
}

func (n *generateNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	run, err := runFrom(shared)
	if err != nil {
		return "", err
	}

	msg := execResult.(model.Message)
	run.conversation.Append(msg)

	if !msg.HasToolCalls() {
		run.state = StateDone
		return actionDone, nil
	}

	run.state = StateExecuteTools
	return actionTools, nil
}

type toolsNode struct {
	*flyt.BaseNode
	agent *Agent
}

func (n *toolsNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	run, err := runFrom(shared)
	if err != nil {
		return nil, err
	}

	last, ok := run.conversation.Last()
	if !ok || last.Role != model.RoleAssistant {
		return nil, errors.New("graph: tools node reached without an assistant message")
	}
	return last.ToolCalls, nil
}

func (n *toolsNode) Exec(ctx context.Context, prepResult any) (any, error) {
	calls := prepResult.([]model.ToolCall)
	return n.agent.executeTools(ctx, calls), nil
}

func (n *toolsNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	run, err := runFrom(shared)
	if err != nil {
		return "", err
	}

	run.conversation.Append(execResult.([]model.Message)...)
	run.rounds++

	if run.rounds < n.agent.maxRounds {
		run.state = StateGenerate
		return actionGenerate, nil
	}

	run.state = StateDone
	return actionDone, nil
}

// executeTools runs every call and returns one result per call, in call order.
func (a *Agent) executeTools(ctx context.Context, calls []model.ToolCall) []model.Message {
	results := make([]model.Message, len(calls))

	if !a.parallelTools || len(calls) < 2 {
		for i, call := range calls {
			results[i] = a.callTool(ctx, call)
		}
		return results
	}

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = a.callTool(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
