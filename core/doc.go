// Package core provides the foundational types shared by the weather team:
//
//   - Agents (units of orchestrated work) and their identity
//   - Sessions (per app/user/session state plus ordered event history)
//   - Events (immutable conversation + orchestration records)
//   - RunContext, ToolContext and CallbackContext (scoped execution surfaces)
//   - State, the key/value view every context exposes to tools and guardrails
//
// Persistence, model specifics and agent implementations live in their own
// packages; core only defines the small interfaces they meet at.
package core
