// Package runner executes turns of an agent team.
//
// A turn starts with Runner.Run: the runner takes the session's turn slot,
// records the user event, starts the root agent in a goroutine and processes
// every emitted event. Non-partial events are appended to the SessionStore
// (which applies their state delta) and to the agent's working session before
// the agent is resumed, so state written by a tool or hook is visible to the
// next model step. When the agent returns, post-turn hooks run with the first
// final response (see OutputKeyHook) and both channels close.
//
// Each turn is traced as an OpenTelemetry span named "runner.turn".
package runner
