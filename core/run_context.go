package core

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/weatherteam/logging"
)

// RunContext carries execution state & helpers for one turn of an agent run.
// It encapsulates the mutable, per-invocation execution scope passed to an
// Agent's Run method. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (session key, RunID, Agent info)
//   - Input user Content
//   - Emission / resumption coordination channels
//   - A working Session snapshot and pending StateDelta to commit
//
// State mutations performed via Set accumulate in StateDelta until EmitEvent
// attaches them to the next event. The runner persists that delta together
// with the event before it signals Resume.
type RunContext struct {
	Context      context.Context
	Key          SessionKey
	RunID        string
	Agent        AgentInfo
	UserContent  Content
	Emit         chan<- Event
	Resume       <-chan struct{}
	SessionStore SessionStore
	Limiter      *ModelLimiter
	Session      *Session
	StateDelta   map[string]any

	mu sync.Mutex
	*loggerAdapter
}

// NewRunContext constructs a RunContext with an empty state delta. A nil
// limiter means unlimited model calls.
func NewRunContext(
	ctx context.Context,
	key SessionKey,
	runID string,
	agent AgentInfo,
	userContent Content,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	limiter *ModelLimiter,
	logger logging.Logger,
) *RunContext {
	if limiter == nil {
		limiter = NewModelLimiter(0)
	}
	return &RunContext{
		Context:       ctx,
		Key:           key,
		RunID:         runID,
		Agent:         agent,
		UserContent:   userContent,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		Limiter:       limiter,
		StateDelta:    map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Get returns a staged (delta) value if present, else the session value.
func (rc *RunContext) Get(k string) (any, bool) {
	rc.mu.Lock()
	v, ok := rc.StateDelta[k]
	rc.mu.Unlock()
	if ok {
		return v, true
	}

	if rc.Session != nil {
		return rc.Session.Get(k)
	}

	return nil, false
}

// Set stages a state mutation in the delta buffer.
func (rc *RunContext) Set(k string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.StateDelta[k] = v
}

// StateView returns the merged session state plus staged delta.
func (rc *RunContext) StateView() map[string]any {
	var out map[string]any
	if rc.Session != nil {
		out = rc.Session.StateSnapshot()
	} else {
		out = map[string]any{}
	}
	rc.mu.Lock()
	maps.Copy(out, rc.StateDelta)
	rc.mu.Unlock()
	return out
}

// GetSessionHistory returns the conversation history of the working session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}

	return rc.Session.GetConversationHistory()
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	s, err := rc.SessionStore.Get(rc.Context, rc.Key)
	if err != nil {
		return err
	}

	rc.Session = s

	return nil
}

// AgentName returns the logical agent name for this invocation.
func (rc *RunContext) AgentName() string { return rc.Agent.Name }

// WithAgent derives a context that runs on behalf of another agent while
// sharing channels, session, limiter and pending delta.
func (rc *RunContext) WithAgent(agent AgentInfo) *RunContext {
	rc.mu.Lock()
	delta := maps.Clone(rc.StateDelta)
	rc.mu.Unlock()

	return &RunContext{
		Context:       rc.Context,
		Key:           rc.Key,
		RunID:         rc.RunID,
		Agent:         agent,
		UserContent:   rc.UserContent,
		Emit:          rc.Emit,
		Resume:        rc.Resume,
		SessionStore:  rc.SessionStore,
		Limiter:       rc.Limiter,
		Session:       rc.Session,
		StateDelta:    delta,
		loggerAdapter: rc.loggerAdapter,
	}
}

// EmitEvent merges the pending StateDelta into the event and emits it.
func (rc *RunContext) EmitEvent(ev Event) error {
	rc.mu.Lock()
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range rc.StateDelta {
			if _, set := ev.Actions.StateDelta[k]; !set {
				ev.Actions.StateDelta[k] = v
			}
		}
	}
	rc.mu.Unlock()

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	rc.mu.Lock()
	rc.StateDelta = map[string]any{}
	rc.mu.Unlock()

	return nil
}

// EmitAndWait emits ev and, for non-partial events, blocks until the runner
// has persisted it.
func (rc *RunContext) EmitAndWait(ev Event) error {
	if err := rc.EmitEvent(ev); err != nil {
		return err
	}
	if ev.IsPartial() {
		return nil
	}
	return rc.WaitForResume()
}

// WaitForResume blocks until Resume signals or context cancellation.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}

	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}
