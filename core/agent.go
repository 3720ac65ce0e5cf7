package core

// Agent defines the interface every agent in the team implements.
//
// Agents receive a RunContext, emit events through it and may hand control to
// a descendant (transfer). The hierarchy methods let the flow locate transfer
// targets by name.
//
// Implementations must:
//   - Respect context cancellation
//   - Emit events through the provided RunContext
//   - Wait for the resume signal after each non-partial event they emit
type Agent interface {
	Name() string
	Description() string
	Run(runCtx *RunContext) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts & events.
type AgentInfo struct{ Name, Type string }
