// Package agent contains the agent implementations of a team: BaseAgent
// (identity and hierarchy plumbing) and ModelAgent (a language model with
// tools, hooks and optional delegation to sub-agents).
//
// Execution model:
//   - An agent's Run receives a *core.RunContext shared with the runner
//   - ModelAgent selects a flow (single or multi agent) and runs it
//   - A transfer hands the same RunContext to the target sub-agent
//
// The package keeps persistence, model specifics and tool implementations in
// their own packages to avoid cyclic deps.
package agent
