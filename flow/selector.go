package flow

// Option customizes a flow built by the selector.
type Option func(*BaseFlow)

// WithFunctionExecutor replaces the default parallel executor.
func WithFunctionExecutor(e FunctionExecutor) Option {
	return func(f *BaseFlow) { f.executor = e }
}

// WithResponseProcessor appends a response processor.
func WithResponseProcessor(p ResponseProcessor) Option {
	return func(f *BaseFlow) { f.AddResponseProcessor(p) }
}

func newConfiguredFlow(agent FlowAgent, opts []Option) *BaseFlow {
	f := NewBaseFlow(agent)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Selector determines which flow to use based on agent capabilities.
type Selector struct {
	opts []Option
}

// NewSelector creates a new flow selector; opts apply to every flow it builds.
func NewSelector(opts ...Option) *Selector { return &Selector{opts: opts} }

// SelectFlow chooses the appropriate flow for the given agent:
//   - SingleAgentFlow for isolated agents without transfers or sub-agents
//   - MultiAgentFlow for agents that can delegate
func (s *Selector) SelectFlow(agent FlowAgent) Flow {
	if !canTransfer(agent) {
		return NewSingleAgentFlow(agent, s.opts...)
	}
	return NewMultiAgentFlow(agent, s.opts...)
}
