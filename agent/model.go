package agent

import (
	"fmt"

	"github.com/hupe1980/weatherteam/callback"
	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/flow"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction        Instruction
	Description        string
	OutputKey          string
	MaxHistoryMessages int
	AllowTransfer      bool
	Tools              []tool.Tool
	Callbacks          *callback.Set
	FlowOptions        []flow.Option
}

// ModelAgent is a conversational agent backed by a language model. It
// registers tools, runs hooks around model and tool calls, and may delegate
// to sub-agents via transfer_to_agent.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	tools              []tool.Tool
	toolIndex          map[string]int
	callbacks          *callback.Set
	outputKey          string
	maxHistoryMessages int
	allowTransfer      bool
	flowOptions        []flow.Option
}

// NewModelAgent creates a model agent with defaults:
//   - a generic helpful-assistant instruction
//   - a 20-content conversation window
//   - transfer enabled (effective only once sub-agents are set)
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		MaxHistoryMessages: 20,
		AllowTransfer:      true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		toolIndex:          make(map[string]int),
		callbacks:          opts.Callbacks,
		outputKey:          opts.OutputKey,
		maxHistoryMessages: opts.MaxHistoryMessages,
		allowTransfer:      opts.AllowTransfer,
		flowOptions:        opts.FlowOptions,
	}
	a.bind(a)

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	a.RegisterTools(opts.Tools...)

	return a
}

// RegisterTool adds a tool; re-registering a name replaces the earlier tool
// in place so declaration order stays stable.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	if i, ok := a.toolIndex[t.Name()]; ok {
		a.tools[i] = t
		return
	}
	a.toolIndex[t.Name()] = len(a.tools)
	a.tools = append(a.tools, t)
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.toolIndex[name]
	return exists
}

// ListTools returns the names of all registered tools in registration order.
func (a *ModelAgent) ListTools() []string {
	names := make([]string, 0, len(a.tools))
	for _, t := range a.tools {
		names = append(names, t.Name())
	}
	return names
}

// GetTool retrieves a specific tool by name.
func (a *ModelAgent) GetTool(name string) (tool.Tool, bool) {
	i, exists := a.toolIndex[name]
	if !exists {
		return nil, false
	}
	return a.tools[i], true
}

// Model returns the language model instance.
func (a *ModelAgent) Model() model.Model { return a.llm }

// Tools returns a copy of the registered tools.
func (a *ModelAgent) Tools() []tool.Tool {
	out := make([]tool.Tool, len(a.tools))
	copy(out, a.tools)
	return out
}

// Callbacks returns the agent's hooks (possibly nil).
func (a *ModelAgent) Callbacks() *callback.Set { return a.callbacks }

// IsTransferEnabled returns whether agent transfer is enabled.
func (a *ModelAgent) IsTransferEnabled() bool { return a.allowTransfer }

// OutputKey returns the state key the agent's final reply is saved under.
func (a *ModelAgent) OutputKey() string { return a.outputKey }

// MaxHistoryMessages returns the conversation window size.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ResolveInstructions produces the raw instruction text.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// Run implements core.Agent using the flow selector to choose the
// execution strategy.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	if a.llm == nil {
		return fmt.Errorf("agent %s: no model configured", a.Name())
	}

	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "run", runCtx.RunID)

	fl := flow.NewSelector(a.flowOptions...).SelectFlow(a)

	runCtx.LogDebug("agent.flow.selected", "agent", a.Name(), "flow", fmt.Sprintf("%T", fl))

	if err := fl.Run(runCtx); err != nil {
		runCtx.LogError("agent.flow.error", "agent", a.Name(), "error", err.Error())
		return fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	runCtx.LogDebug("agent.run.complete", "agent", a.Name())

	return nil
}
