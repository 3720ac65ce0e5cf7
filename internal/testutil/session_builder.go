package testutil

import (
	"context"

	"github.com/hupe1980/weatherteam/core"
)

// DefaultKey is the session key used by builders when none is given.
var DefaultKey = core.SessionKey{AppName: "test_app", UserID: "test_user", SessionID: "test_session"}

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder().State("k","v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	key    core.SessionKey
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder creates a new builder keyed by DefaultKey.
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{key: DefaultKey, state: map[string]any{}}
}

// Key overrides the session key (chainable).
func (b *SessionBuilder) Key(k core.SessionKey) *SessionBuilder { b.key = k; return b }

// State sets or overwrites a state key/value pair on the resulting session (chainable).
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Events appends events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.key, b.state)
	s.Events = append(s.Events, b.events...)
	return s
}

// RunHarness drives an agent the way the runner does: it receives emitted
// events, applies them to the working session and signals resume.
type RunHarness struct {
	RunCtx *core.RunContext
	Events []core.Event

	emit   chan core.Event
	resume chan struct{}
}

// NewRunHarness builds a RunContext for agent over sess with userText as input.
func NewRunHarness(ctx context.Context, sess *core.Session, agent core.AgentInfo, userText string) *RunHarness {
	emit := make(chan core.Event, 16)
	resume := make(chan struct{}, 1)
	user := core.NewTextContent(core.RoleUser, userText)
	sess.AddEvent(core.NewUserContentEvent("run-test", user))

	rc := core.NewRunContext(ctx, sess.Key, "run-test", agent, user, emit, resume, sess, nil, nil, nil)
	return &RunHarness{RunCtx: rc, emit: emit, resume: resume}
}

// Run executes fn (typically agent.Run) and collects every emitted event.
func (h *RunHarness) Run(fn func(*core.RunContext) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn(h.RunCtx)
		close(h.emit)
	}()

	for ev := range h.emit {
		if !ev.IsPartial() {
			h.RunCtx.Session.AddEvent(ev)
		}
		h.Events = append(h.Events, ev)
		if !ev.IsPartial() {
			h.resume <- struct{}{}
		}
	}

	return <-errCh
}

// FinalText returns the text of the first final response event with content.
func (h *RunHarness) FinalText() string {
	for _, ev := range h.Events {
		if ev.IsFinalResponse() && ev.Content != nil {
			return ev.Text()
		}
	}
	return ""
}
