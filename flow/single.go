package flow

// SingleAgentFlow implements the execution flow for a standalone agent
// (no transfers, no sub-agent delegation). It wires the instruction,
// contents and tools processors.
type SingleAgentFlow struct{ *BaseFlow }

// NewSingleAgentFlow creates a new single-agent flow.
func NewSingleAgentFlow(agent FlowAgent, opts ...Option) *SingleAgentFlow {
	baseFlow := newConfiguredFlow(agent, opts)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewToolsProcessor())

	return &SingleAgentFlow{BaseFlow: baseFlow}
}
