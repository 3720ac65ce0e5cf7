package core

import "context"

// CallbackContext is handed to model-level callbacks. State writes are staged
// on the run and travel with the next event the agent emits.
type CallbackContext struct {
	runCtx *RunContext
}

// NewCallbackContext wraps runCtx for callback use.
func NewCallbackContext(runCtx *RunContext) *CallbackContext {
	return &CallbackContext{runCtx: runCtx}
}

// Context returns the ambient context.
func (cc *CallbackContext) Context() context.Context { return cc.runCtx.Context }

// AgentName returns the agent the callback fires for.
func (cc *CallbackContext) AgentName() string { return cc.runCtx.Agent.Name }

// RunID returns the current run id.
func (cc *CallbackContext) RunID() string { return cc.runCtx.RunID }

// UserContent returns the content that started this turn.
func (cc *CallbackContext) UserContent() Content { return cc.runCtx.UserContent }

// Get implements State.
func (cc *CallbackContext) Get(k string) (any, bool) { return cc.runCtx.Get(k) }

// Set implements State.
func (cc *CallbackContext) Set(k string, v any) { cc.runCtx.Set(k, v) }

// LogInfo logs through the run logger.
func (cc *CallbackContext) LogInfo(msg string, args ...any) { cc.runCtx.LogInfo(msg, args...) }
