package flow

import (
	"context"
	"testing"

	"github.com/hupe1980/weatherteam/callback"
	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/internal/testutil"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

// testAgent is a minimal FlowAgent + core.Agent used across flow tests.
type testAgent struct {
	name        string
	description string
	instruction string
	mdl         model.Model
	tools       []tool.Tool
	callbacks   *callback.Set
	subs        []core.Agent
	maxHistory  int
	executor    FunctionExecutor
}

func (a *testAgent) Name() string        { return a.name }
func (a *testAgent) Description() string { return a.description }
func (a *testAgent) Model() model.Model  { return a.mdl }
func (a *testAgent) ResolveInstructions(*core.RunContext) (string, error) {
	return a.instruction, nil
}
func (a *testAgent) Tools() []tool.Tool       { return a.tools }
func (a *testAgent) Callbacks() *callback.Set { return a.callbacks }
func (a *testAgent) SubAgents() []core.Agent  { return a.subs }
func (a *testAgent) Parent() core.Agent       { return nil }
func (a *testAgent) IsTransferEnabled() bool  { return len(a.subs) > 0 }
func (a *testAgent) MaxHistoryMessages() int  { return a.maxHistory }
func (a *testAgent) FindAgent(n string) core.Agent {
	if n == a.name {
		return a
	}
	for _, s := range a.subs {
		if found := s.FindAgent(n); found != nil {
			return found
		}
	}
	return nil
}

func (a *testAgent) Run(runCtx *core.RunContext) error {
	var opts []Option
	if a.executor != nil {
		opts = append(opts, WithFunctionExecutor(a.executor))
	}
	return NewSelector(opts...).SelectFlow(a).Run(runCtx)
}

func runAgent(t *testing.T, a *testAgent, sess *core.Session, input string) (*testutil.RunHarness, error) {
	t.Helper()
	h := testutil.NewRunHarness(context.Background(), sess, core.AgentInfo{Name: a.name, Type: "model"}, input)
	err := h.Run(a.Run)
	return h, err
}

func recordingTool(name string, calls *[]map[string]any, fn func(tc *core.ToolContext, args map[string]any) (any, error)) tool.Tool {
	return tool.NewFunctionTool(name, name+" tool", nil, func(tc *core.ToolContext, args map[string]any) (any, error) {
		if calls != nil {
			*calls = append(*calls, args)
		}
		return fn(tc, args)
	})
}
