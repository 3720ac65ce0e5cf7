package flow

import (
	"errors"
	"fmt"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/model"
)

// ErrNoResponse is returned when a model closes without a final response.
var ErrNoResponse = errors.New("model returned no final response")

// BaseFlow is the single-agent loop with pluggable pre/post processors.
type BaseFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	executor           FunctionExecutor
}

// NewBaseFlow creates a flow with no processors and the default executor.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:    agent,
		executor: NewParallelFunctionExecutor(FunctionExecutorConfig{}),
	}
}

// AddRequestProcessor appends a request processor; registration order is execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed on each final model response.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// SetFunctionExecutor replaces the tool executor.
func (f *BaseFlow) SetFunctionExecutor(e FunctionExecutor) { f.executor = e }

// Run loops model turns until the agent's part of the turn is over. A
// transfer hands the same run to the target agent.
func (f *BaseFlow) Run(runCtx *core.RunContext) error {
	for {
		last, err := f.runOnce(runCtx)
		if err != nil {
			return err
		}

		if target := last.Actions.TransferToAgent; target != nil && *target != "" {
			return f.transfer(runCtx, *target)
		}

		if last.IsEscalation() || last.IsFinalResponse() {
			return nil
		}
	}
}

func (f *BaseFlow) transfer(runCtx *core.RunContext, name string) error {
	target := f.agent.FindAgent(name)
	if target == nil {
		return fmt.Errorf("transfer target %q not found", name)
	}

	runCtx.LogInfo("flow.transfer", "from_agent", f.agent.Name(), "to_agent", name)

	return target.Run(runCtx.WithAgent(core.AgentInfo{Name: target.Name(), Type: "model"}))
}

// runOnce performs one model step (including any tool executions) and
// returns the last emitted event.
func (f *BaseFlow) runOnce(runCtx *core.RunContext) (*core.Event, error) {
	req := new(model.Request)

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			return nil, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	cbCtx := core.NewCallbackContext(runCtx)
	callbacks := f.agent.Callbacks()

	resp, err := callbacks.RunBeforeModel(cbCtx, req)
	if err != nil {
		return nil, fmt.Errorf("before_model callback failed: %w", err)
	}

	if resp != nil {
		runCtx.LogInfo("flow.model.skipped", "agent", f.agent.Name(), "reason", "before_model callback")
	} else {
		if err := runCtx.Limiter.Acquire(runCtx.Context); err != nil {
			return nil, err
		}

		resp, err = f.callModel(runCtx, *req)
		if err != nil {
			return nil, err
		}

		replaced, err := callbacks.RunAfterModel(cbCtx, resp)
		if err != nil {
			return nil, fmt.Errorf("after_model callback failed: %w", err)
		}
		if replaced != nil {
			resp = replaced
		}
	}

	for _, processor := range f.responseProcessors {
		if err := processor.ProcessResponse(runCtx, resp, f.agent); err != nil {
			return nil, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
		}
	}

	ev := core.NewEvent(runCtx.RunID, f.agent.Name())
	content := resp.Content
	content.Role = core.RoleAssistant
	ev.Content = &content

	calls := ev.GetFunctionCalls()
	if len(calls) == 0 {
		complete := true
		ev.TurnComplete = &complete
	}
	ensureCallIDs(calls, ev.Content)

	if err := runCtx.EmitAndWait(ev); err != nil {
		return nil, err
	}

	if len(calls) == 0 {
		return &ev, nil
	}

	respEv := f.executor.Execute(runCtx, f.agent, ev.GetFunctionCalls())
	if err := runCtx.EmitAndWait(respEv); err != nil {
		return nil, err
	}

	return &respEv, nil
}

// callModel drives one Generate call, forwarding partial chunks and
// returning the final response.
func (f *BaseFlow) callModel(runCtx *core.RunContext, req model.Request) (*model.Response, error) {
	respCh, errCh := f.agent.Model().Generate(runCtx.Context, req)

	var final *model.Response
	for resp := range respCh {
		if resp.Partial {
			partial := true
			ev := core.NewEvent(runCtx.RunID, f.agent.Name())
			content := resp.Content
			ev.Content = &content
			ev.Partial = &partial
			if err := runCtx.EmitEvent(ev); err != nil {
				return nil, err
			}
			continue
		}
		r := resp
		final = &r
	}

	if err, ok := <-errCh; ok && err != nil {
		runCtx.LogError("flow.model.error", "agent", f.agent.Name(), "error", err.Error())
		return nil, fmt.Errorf("model %s: %w", f.agent.Model().Info().Name, err)
	}

	if final == nil {
		return nil, ErrNoResponse
	}

	return final, nil
}

// ensureCallIDs assigns ids to function calls that arrived without one so
// responses can be correlated.
func ensureCallIDs(calls []core.FunctionCall, content *core.Content) {
	missing := false
	for _, c := range calls {
		if c.ID == "" {
			missing = true
			break
		}
	}
	if !missing {
		return
	}
	for i, p := range content.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = "call-" + core.NewID()
			content.Parts[i] = fc
		}
	}
}
