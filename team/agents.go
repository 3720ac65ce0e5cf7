package team

import (
	"fmt"

	"github.com/hupe1980/weatherteam/agent"
	"github.com/hupe1980/weatherteam/callback"
	"github.com/hupe1980/weatherteam/flow"
	"github.com/hupe1980/weatherteam/greet"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
	"github.com/hupe1980/weatherteam/weather"
)

// Agent names.
const (
	RootAgentName     = "weather_agent_v6_tool_guardrail"
	GreetingAgentName = "greeting_agent"
	FarewellAgentName = "farewell_agent"
)

// StateKeyLastReport receives the root agent's final reply of each turn.
const StateKeyLastReport = "last_weather_report"

var (
	rootInstruction = agent.NewInstructionFromLines(
		"You are the main Weather Agent.",
		"Provide weather using 'get_weather_stateful'.",
		"Delegate greetings to 'greeting_agent' and farewells to 'farewell_agent'.",
		"Handle only weather, greetings, and farewells.",
	)

	greetingInstruction = agent.NewInstructionFromLines(
		"You are the Greeting Agent.",
		"Your ONLY task is to provide a friendly greeting using the 'say_hello' tool.",
		"Do nothing else.",
	)

	farewellInstruction = agent.NewInstructionFromLines(
		"You are the Farewell Agent.",
		"Your ONLY task is to provide a polite goodbye message using the 'say_goodbye' tool.",
		"Do not perform any other actions.",
	)
)

// ModelFactory returns the model an agent runs on. It is called once per
// agent so each can be instrumented separately.
type ModelFactory func(agentName string) model.Model

// AgentSpec carries everything NewAgents needs.
type AgentSpec struct {
	Models      ModelFactory
	Weather     weather.Source
	Callbacks   *callback.Set
	FlowOptions []flow.Option
}

// NewAgents builds the team: a root weather agent guarded by spec.Callbacks
// with the greeting and farewell specialists as sub-agents.
func NewAgents(spec AgentSpec) (*agent.ModelAgent, error) {
	if spec.Models == nil {
		return nil, fmt.Errorf("%w: no model factory", ErrInvalidConfig)
	}
	if spec.Weather == nil {
		spec.Weather = weather.NewMockTable()
	}

	greeting := agent.NewModelAgent(GreetingAgentName, spec.Models(GreetingAgentName), func(o *agent.ModelAgentOptions) {
		o.Description = "Handles simple greetings and hellos using the 'say_hello' tool."
		o.Instruction = greetingInstruction
		o.Tools = []tool.Tool{greet.NewSayHelloTool()}
		o.FlowOptions = spec.FlowOptions
	})

	farewell := agent.NewModelAgent(FarewellAgentName, spec.Models(FarewellAgentName), func(o *agent.ModelAgentOptions) {
		o.Description = "Handles simple farewells and goodbyes using the 'say_goodbye' tool."
		o.Instruction = farewellInstruction
		o.Tools = []tool.Tool{greet.NewSayGoodbyeTool()}
		o.FlowOptions = spec.FlowOptions
	})

	root := agent.NewModelAgent(RootAgentName, spec.Models(RootAgentName), func(o *agent.ModelAgentOptions) {
		o.Description = "Main agent: Handles weather, delegates, includes input AND tool guardrails."
		o.Instruction = rootInstruction
		o.Tools = []tool.Tool{weather.NewStatefulTool(spec.Weather)}
		o.OutputKey = StateKeyLastReport
		o.Callbacks = spec.Callbacks
		o.FlowOptions = spec.FlowOptions
	})

	if err := root.SetSubAgents(greeting, farewell); err != nil {
		return nil, err
	}

	return root, nil
}
