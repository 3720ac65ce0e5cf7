// Package callback defines the hook points a model agent exposes around
// model and tool invocations, and ordered chains that run them.
//
// A hook that returns a non-nil result short-circuits the guarded operation:
// a before-model hook's response replaces the model call, a before-tool
// hook's result replaces the tool call. Chains run hooks in registration
// order and stop at the first non-nil result or error.
package callback

import (
	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/logging"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

// Type names a lifecycle point.
type Type string

const (
	// TypeBeforeModel fires before a model request is sent.
	TypeBeforeModel Type = "before_model"
	// TypeAfterModel fires after a model response arrives.
	TypeAfterModel Type = "after_model"
	// TypeBeforeTool fires before a tool executes.
	TypeBeforeTool Type = "before_tool"
	// TypeAfterTool fires after a tool returns.
	TypeAfterTool Type = "after_tool"
)

// BeforeModel inspects or replaces a model call. Returning a response skips
// the model entirely; the response is emitted as if the model produced it.
type BeforeModel func(cbCtx *core.CallbackContext, req *model.Request) (*model.Response, error)

// AfterModel may replace the model's response.
type AfterModel func(cbCtx *core.CallbackContext, resp *model.Response) (*model.Response, error)

// BeforeTool inspects or replaces a tool call. Returning a non-nil result
// skips the tool and uses the result as its response.
type BeforeTool func(t tool.Tool, args map[string]any, toolCtx *core.ToolContext) (any, error)

// AfterTool may replace a tool's result.
type AfterTool func(t tool.Tool, args map[string]any, toolCtx *core.ToolContext, result any) (any, error)

// Set holds the hooks attached to one agent. The zero value is ready to use.
type Set struct {
	BeforeModel []BeforeModel
	AfterModel  []AfterModel
	BeforeTool  []BeforeTool
	AfterTool   []AfterTool
}

// Empty reports whether no hooks are registered.
func (s *Set) Empty() bool {
	return s == nil || (len(s.BeforeModel) == 0 && len(s.AfterModel) == 0 && len(s.BeforeTool) == 0 && len(s.AfterTool) == 0)
}

// RunBeforeModel executes before-model hooks until one returns a response.
func (s *Set) RunBeforeModel(cbCtx *core.CallbackContext, req *model.Request) (*model.Response, error) {
	if s == nil {
		return nil, nil
	}
	for _, fn := range s.BeforeModel {
		resp, err := fn(cbCtx, req)
		if err != nil || resp != nil {
			return resp, err
		}
	}
	return nil, nil
}

// RunAfterModel executes after-model hooks until one returns a replacement.
func (s *Set) RunAfterModel(cbCtx *core.CallbackContext, resp *model.Response) (*model.Response, error) {
	if s == nil {
		return nil, nil
	}
	for _, fn := range s.AfterModel {
		out, err := fn(cbCtx, resp)
		if err != nil || out != nil {
			return out, err
		}
	}
	return nil, nil
}

// RunBeforeTool executes before-tool hooks until one returns a result.
func (s *Set) RunBeforeTool(t tool.Tool, args map[string]any, toolCtx *core.ToolContext) (any, error) {
	if s == nil {
		return nil, nil
	}
	for _, fn := range s.BeforeTool {
		out, err := fn(t, args, toolCtx)
		if err != nil || out != nil {
			return out, err
		}
	}
	return nil, nil
}

// RunAfterTool executes after-tool hooks until one returns a replacement.
func (s *Set) RunAfterTool(t tool.Tool, args map[string]any, toolCtx *core.ToolContext, result any) (any, error) {
	if s == nil {
		return nil, nil
	}
	for _, fn := range s.AfterTool {
		out, err := fn(t, args, toolCtx, result)
		if err != nil || out != nil {
			return out, err
		}
	}
	return nil, nil
}

// LogBeforeModel returns a hook that logs every model request and never
// short-circuits.
func LogBeforeModel(logger logging.Logger) BeforeModel {
	return func(cbCtx *core.CallbackContext, req *model.Request) (*model.Response, error) {
		logger.Debug("callback.before_model",
			"agent", cbCtx.AgentName(),
			"contents", len(req.Contents),
			"tools", len(req.Tools),
		)
		return nil, nil
	}
}

// LogBeforeTool returns a hook that logs every tool call and never
// short-circuits.
func LogBeforeTool(logger logging.Logger) BeforeTool {
	return func(t tool.Tool, args map[string]any, toolCtx *core.ToolContext) (any, error) {
		logger.Debug("callback.before_tool",
			"agent", toolCtx.AgentName(),
			"tool", t.Name(),
			"args", args,
		)
		return nil, nil
	}
}
