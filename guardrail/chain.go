package guardrail

import (
	"github.com/hupe1980/weatherteam/callback"
	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/logging"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

// TripObserver is told whenever a guardrail fires.
type TripObserver interface {
	RecordGuardrailTrip(guardrail, stage string)
}

// Chain runs guards in order; the first hit wins.
type Chain struct {
	input    []InputGuard
	tool     []ToolGuard
	logger   logging.Logger
	observer TripObserver
}

// ChainOptions configures a Chain.
type ChainOptions struct {
	Logger   logging.Logger
	Observer TripObserver
}

// NewChain creates an empty Chain.
func NewChain(optFns ...func(o *ChainOptions)) *Chain {
	opts := ChainOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Chain{logger: opts.Logger, observer: opts.Observer}
}

// AddInput appends input guards.
func (c *Chain) AddInput(guards ...InputGuard) *Chain {
	c.input = append(c.input, guards...)
	return c
}

// AddTool appends tool guards.
func (c *Chain) AddTool(guards ...ToolGuard) *Chain {
	c.tool = append(c.tool, guards...)
	return c
}

// CheckInput runs the input guards against text.
func (c *Chain) CheckInput(text string, state core.State) (string, bool) {
	for _, g := range c.input {
		if reply, blocked := g.CheckInput(text, state); blocked {
			c.logger.Info("guardrail.input.blocked", "guardrail", g.Name())
			c.trip(g.Name(), StageInput)
			return reply, true
		}
	}
	return "", false
}

// CheckToolCall runs the tool guards against a pending call.
func (c *Chain) CheckToolCall(toolName string, args map[string]any, state core.State) (tool.Result, bool) {
	for _, g := range c.tool {
		if res, blocked := g.CheckToolCall(toolName, args, state); blocked {
			c.logger.Info("guardrail.tool.blocked", "guardrail", g.Name(), "tool", toolName)
			c.trip(g.Name(), StageTool)
			return res, true
		}
	}
	return tool.Result{}, false
}

func (c *Chain) trip(name, stage string) {
	if c.observer != nil {
		c.observer.RecordGuardrailTrip(name, stage)
	}
}

// BeforeModel adapts the input guards to a before-model hook. The scanned
// text is the user content that started the turn; a blocked turn is
// answered with the guard's reply and the model is not called.
func (c *Chain) BeforeModel() callback.BeforeModel {
	return func(cbCtx *core.CallbackContext, req *model.Request) (*model.Response, error) {
		reply, blocked := c.CheckInput(LatestUserText(cbCtx, req), cbCtx)
		if !blocked {
			return nil, nil
		}
		return model.NewTextResponse(reply), nil
	}
}

// BeforeTool adapts the tool guards to a before-tool hook.
func (c *Chain) BeforeTool() callback.BeforeTool {
	return func(t tool.Tool, args map[string]any, toolCtx *core.ToolContext) (any, error) {
		res, blocked := c.CheckToolCall(t.Name(), args, toolCtx)
		if !blocked {
			return nil, nil
		}
		return res, nil
	}
}

// Callbacks returns a set holding both hooks.
func (c *Chain) Callbacks() *callback.Set {
	return &callback.Set{
		BeforeModel: []callback.BeforeModel{c.BeforeModel()},
		BeforeTool:  []callback.BeforeTool{c.BeforeTool()},
	}
}

// LatestUserText returns the text of the utterance that started the turn,
// falling back to the last user content of req. Missing text is "".
func LatestUserText(cbCtx *core.CallbackContext, req *model.Request) string {
	if cbCtx != nil {
		if text := cbCtx.UserContent().Text(); text != "" {
			return text
		}
	}
	if req == nil {
		return ""
	}
	return req.LastUserText()
}
