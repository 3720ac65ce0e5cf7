package flow

// MultiAgentFlow orchestrates an agent that may perform tool calls and
// transfer control to sub-agents.
type MultiAgentFlow struct{ *BaseFlow }

// NewMultiAgentFlow creates a flow with the default processors plus the
// transfer injector.
func NewMultiAgentFlow(agent FlowAgent, opts ...Option) *MultiAgentFlow {
	baseFlow := newConfiguredFlow(agent, opts)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewToolsProcessor())
	// Inject transfer_to_agent tool definition dynamically when applicable
	baseFlow.AddRequestProcessor(NewTransferToolInjector())

	return &MultiAgentFlow{BaseFlow: baseFlow}
}
