// Package flow implements the request -> model -> tools loop that drives a
// model agent, including delegation to sub-agents via transfer_to_agent.
//
// A flow assembles each model request through an ordered list of request
// processors (instructions, contents, tools, transfer), gives the agent's
// before-model hooks a chance to answer instead of the model, emits the
// response, executes any requested tools and repeats until a final response,
// an escalation or a transfer ends the agent's part of the turn.
package flow

import (
	"github.com/hupe1980/weatherteam/callback"
	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

// Flow runs one agent's share of a turn, emitting events through runCtx.
type Flow interface {
	Run(runCtx *core.RunContext) error
}

// FlowAgent is the view of an agent a flow needs.
type FlowAgent interface {
	// Name returns the agent's unique name; it authors emitted events.
	Name() string

	// Description is shown to a parent deciding whether to delegate.
	Description() string

	// Model returns the language model instance.
	Model() model.Model

	// ResolveInstructions produces the raw (untemplated) system prompt.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// Tools returns the registered tools in registration order.
	Tools() []tool.Tool

	// Callbacks returns the agent's hooks; may be nil.
	Callbacks() *callback.Set

	// SubAgents returns the agents this agent may transfer to.
	SubAgents() []core.Agent

	// FindAgent locates an agent in this agent's subtree by name.
	FindAgent(name string) core.Agent

	// IsTransferEnabled reports whether transfer_to_agent is offered.
	IsTransferEnabled() bool

	// MaxHistoryMessages bounds the conversation contents sent to the model.
	MaxHistoryMessages() int
}

// RequestProcessor processes the request before sending it to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor processes the response after receiving it from the model.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse may rewrite the response in place.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}

// canTransfer reports whether the agent offers delegation this turn.
func canTransfer(agent FlowAgent) bool {
	return agent.IsTransferEnabled() && len(agent.SubAgents()) > 0
}
