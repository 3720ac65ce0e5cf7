package model

import (
	"context"
	"fmt"
	"sync"
)

// Step produces one response for a request. Steps run in order, one per
// Generate call.
type Step func(req Request) (*Response, error)

// ScriptedModel is a deterministic in-memory Model for tests and examples.
// Each Generate call consumes the next Step and records the request.
type ScriptedModel struct {
	info     Info
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel replaying steps in order.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: name, Provider: "scripted", SupportsTools: true},
		steps: steps,
	}
}

// Reply returns a Step answering with fixed text.
func Reply(text string) Step {
	return func(Request) (*Response, error) { return NewTextResponse(text), nil }
}

// CallTool returns a Step requesting a single tool call.
func CallTool(id, name string, args map[string]any) Step {
	return func(Request) (*Response, error) { return NewToolCallResponse(id, name, args), nil }
}

// Fail returns a Step that errors.
func Fail(err error) Step {
	return func(Request) (*Response, error) { return nil, err }
}

// Append queues more steps.
func (m *ScriptedModel) Append(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Requests returns the requests seen so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate calls.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step Step
	if len(m.steps) > 0 {
		step = m.steps[0]
		m.steps = m.steps[1:]
	}
	m.mu.Unlock()

	return Single(ctx, func(context.Context) (*Response, error) {
		if step == nil {
			return nil, fmt.Errorf("scripted model %s: no step left", m.info.Name)
		}
		return step(req)
	})
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
