package flow

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/tool"
)

// FunctionExecutor executes a batch of function calls requested by one model
// response and returns a single event carrying one FunctionResponsePart per
// call, in call order. Implementations must:
//   - Never panic (recover internally and report an error response)
//   - Merge every ToolContext's accumulated actions into the returned event
//   - Run the agent's before/after tool hooks around each invocation
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, calls []core.FunctionCall) core.Event
}

// ToolObserver is notified after each tool invocation. status is "success",
// "error" or "blocked".
type ToolObserver func(agent, toolName, status string, elapsed time.Duration)

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(calls))
	LogStartEvents bool // log a start line per function
	Observer       ToolObserver
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

type callOutcome struct {
	response core.FunctionResponse
	toolCtx  *core.ToolContext
}

func (e *parallelFunctionExecutor) Execute(runCtx *core.RunContext, agent FlowAgent, calls []core.FunctionCall) core.Event {
	registry := toolRegistry(agent)
	outcomes := make([]callOutcome, len(calls))

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > len(calls) {
		maxPar = len(calls)
	}

	batchStart := time.Now()

	var g errgroup.Group
	g.SetLimit(max(maxPar, 1))

	for i, fc := range calls {
		g.Go(func() error {
			outcomes[i] = e.executeOne(runCtx, agent, registry, fc)
			return nil
		})
	}
	_ = g.Wait()

	ev := core.NewEvent(runCtx.RunID, agent.Name())
	ev.Content = &core.Content{Role: core.RoleTool}
	for _, out := range outcomes {
		ev.Content.Parts = append(ev.Content.Parts, core.FunctionResponsePart{FunctionResponse: out.response})
		out.toolCtx.InternalApplyActions(&ev)
	}

	if target := ev.Actions.TransferToAgent; target != nil && agent.FindAgent(*target) == nil {
		rejectTransfer(&ev, *target)
		runCtx.LogWarn("agent.transfer.unknown", "agent", agent.Name(), "target", *target)
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.Name(),
		"count", len(calls),
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return ev
}

func (e *parallelFunctionExecutor) executeOne(runCtx *core.RunContext, agent FlowAgent, registry map[string]tool.Tool, fc core.FunctionCall) callOutcome {
	toolCtx := core.NewToolContext(runCtx, fc.ID)
	if e.cfg.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "agent", agent.Name(), "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()
	var (
		result  any
		err     error
		blocked bool
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("agent.function.panic", "agent", agent.Name(), "function", fc.Name, "recover", r)
			}
		}()
		result, blocked, err = invokeTool(agent, registry, toolCtx, fc)
	}()
	dur := time.Since(start)

	runCtx.LogInfo(
		"agent.function.executed",
		"agent", agent.Name(),
		"function", fc.Name,
		"duration_ms", dur.Milliseconds(),
		"blocked", blocked,
		"error", err != nil,
	)

	if e.cfg.Observer != nil {
		e.cfg.Observer(agent.Name(), fc.Name, outcomeStatus(result, blocked, err), dur)
	}

	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
	if err != nil {
		resp.Error = err.Error()
	}

	return callOutcome{response: resp, toolCtx: toolCtx}
}

// invokeTool resolves the tool, decodes arguments and runs the hook chain.
// blocked reports that a before-tool hook supplied the result.
func invokeTool(agent FlowAgent, registry map[string]tool.Tool, toolCtx *core.ToolContext, fc core.FunctionCall) (any, bool, error) {
	impl, ok := registry[fc.Name]
	if !ok {
		return nil, false, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeNotFound)
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, false, tool.NewToolError(fc.Name, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	callbacks := agent.Callbacks()

	override, err := callbacks.RunBeforeTool(impl, args, toolCtx)
	if err != nil {
		return nil, false, err
	}
	if override != nil {
		return override, true, nil
	}

	result, err := impl.Call(toolCtx, args)
	if err != nil {
		return nil, false, err
	}

	replaced, err := callbacks.RunAfterTool(impl, args, toolCtx, result)
	if err != nil {
		return nil, false, err
	}
	if replaced != nil {
		result = replaced
	}

	return result, false, nil
}

// toolRegistry indexes the agent's tools by name, adding the transfer tool
// when delegation is offered.
func toolRegistry(agent FlowAgent) map[string]tool.Tool {
	registry := make(map[string]tool.Tool, len(agent.Tools())+1)
	for _, t := range agent.Tools() {
		registry[t.Name()] = t
	}
	if canTransfer(agent) {
		if _, exists := registry[tool.TransferToAgentName]; !exists {
			registry[tool.TransferToAgentName] = tool.NewTransferToAgentTool()
		}
	}
	return registry
}

// rejectTransfer turns a transfer to an unknown agent into an error response
// so the model can recover on its next step.
func rejectTransfer(ev *core.Event, target string) {
	ev.Actions.TransferToAgent = nil
	for i, p := range ev.Content.Parts {
		frp, ok := p.(core.FunctionResponsePart)
		if !ok || frp.FunctionResponse.Name != tool.TransferToAgentName {
			continue
		}
		frp.FunctionResponse.Response = nil
		frp.FunctionResponse.Error = fmt.Sprintf("agent %q does not exist", target)
		ev.Content.Parts[i] = frp
	}
}

func outcomeStatus(result any, blocked bool, err error) string {
	switch {
	case blocked:
		return "blocked"
	case err != nil:
		return tool.StatusError
	}
	if r, ok := tool.ResultFrom(result); ok && !r.IsSuccess() {
		return tool.StatusError
	}
	return tool.StatusSuccess
}

// panicError converts a recovered panic value to an error, keeping the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
