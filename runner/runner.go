package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/logging"
	"github.com/hupe1980/weatherteam/metrics"
	"github.com/hupe1980/weatherteam/session"
)

const tracerName = "github.com/hupe1980/weatherteam/runner"

// PostTurnHook runs once the agent has finished a turn. final is the turn's
// first final response event, or nil when there was none.
type PostTurnHook func(ctx context.Context, store core.SessionStore, key core.SessionKey, final *core.Event) error

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// MaxModelCalls limits the number of model calls per turn (0 = unlimited).
	MaxModelCalls int
	// ModelCallsPerSecond paces model calls; 0 disables pacing.
	ModelCallsPerSecond float64
	// ModelCallBurst is the token bucket size used with ModelCallsPerSecond.
	ModelCallBurst int
	// SessionStore persists sessions; defaults to an in-memory store.
	SessionStore core.SessionStore
	// Hooks run after every turn, after the automatic output-key hook.
	Hooks []PostTurnHook
	// Logger provides structured logging.
	Logger logging.Logger
	// Tracer creates the per-turn span; defaults to the global provider.
	// The span has ended by the time the turn's channels are closed.
	Tracer trace.Tracer
	// Metrics counts turns; nil disables.
	Metrics *metrics.Collector
}

// Runner coordinates agent execution: serializes turns per session, creates
// run contexts, streams events, persists them with their state deltas and
// runs post-turn hooks. Public methods are safe for concurrent use.
type Runner struct {
	agent core.Agent

	eventBufferSize int
	maxModelCalls   int
	modelRate       float64
	modelBurst      int

	sessionStore core.SessionStore
	hooks        []PostTurnHook
	logger       logging.Logger
	tracer       trace.Tracer
	metrics      *metrics.Collector

	sessionLocks sync.Map // core.SessionKey -> chan struct{}
	activeRuns   map[string]context.CancelFunc
	mu           sync.Mutex
}

// New constructs a Runner for the root agent. When the agent declares an
// output key (OutputKey() string), an OutputKeyHook for it is installed
// first.
func New(agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBufferSize: 100,
		MaxModelCalls:   25,
		SessionStore:    session.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	var hooks []PostTurnHook
	if oa, ok := agent.(interface{ OutputKey() string }); ok && oa.OutputKey() != "" {
		hooks = append(hooks, OutputKeyHook(oa.OutputKey(), agent.Name()))
	}
	hooks = append(hooks, opts.Hooks...)

	return &Runner{
		agent:           agent,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		modelRate:       opts.ModelCallsPerSecond,
		modelBurst:      opts.ModelCallBurst,
		sessionStore:    opts.SessionStore,
		hooks:           hooks,
		logger:          opts.Logger,
		tracer:          opts.Tracer,
		metrics:         opts.Metrics,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// SessionStore returns the store the runner persists to.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Agent returns the root agent.
func (r *Runner) Agent() core.Agent { return r.agent }

// Run starts one turn asynchronously. It blocks only while another turn of
// the same session is in flight. Both returned channels are closed when the
// turn is over; errs carries at most the agent error plus hook errors.
func (r *Runner) Run(
	ctx context.Context,
	key core.SessionKey,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	release, err := r.lockSession(ctx, key)
	if err != nil {
		return "", nil, nil, err
	}

	sess, err := r.sessionStore.Get(ctx, key)
	if err != nil {
		release()
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	runID := core.NewID()

	if userContent.Role == "" {
		userContent.Role = core.RoleUser
	}
	userEvent := core.NewUserContentEvent(runID, userContent)
	if err := r.sessionStore.AppendEvent(ctx, key, userEvent); err != nil {
		release()
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}
	sess.AddEvent(userEvent)

	ctx, span := r.tracer.Start(ctx, "runner.turn", trace.WithAttributes(
		attribute.String("session.key", key.String()),
		attribute.String("run.id", runID),
		attribute.String("agent.root", r.agent.Name()),
	))

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, len(r.hooks)+2)
	agentEmit := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)
	agentDone := make(chan error, 1)

	limiter := core.NewModelLimiter(r.maxModelCalls).WithRate(r.modelRate, r.modelBurst)

	runCtx := core.NewRunContext(
		ctx,
		key,
		runID,
		core.AgentInfo{Name: r.agent.Name(), Type: "model"},
		userContent,
		agentEmit,
		resumeCh,
		sess,
		r.sessionStore,
		limiter,
		r.logger,
	)

	r.logger.Info("runner.turn.start", "session", key.String(), "run", runID)

	go func() {
		defer close(agentEmit)
		agentDone <- r.agent.Run(runCtx)
	}()

	go func() {
		defer func() {
			span.End()
			close(eventsCh)
			close(errorsCh)
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
			release()
		}()

		final, procErr := r.processEvents(runCtx, cancel, agentEmit, resumeCh, eventsCh)
		agentErr := <-agentDone

		turnErr := errors.Join(procErr, agentErr)
		if turnErr == nil {
			turnErr = r.runHooks(context.WithoutCancel(ctx), key, final)
		}

		span.SetAttributes(attribute.Int("model.calls", limiter.Count()))

		if turnErr != nil {
			span.RecordError(turnErr)
			span.SetStatus(codes.Error, turnErr.Error())
			r.metrics.RecordTurn("error")
			r.logger.Error("runner.turn.error", "session", key.String(), "run", runID, "error", turnErr.Error())
			errorsCh <- fmt.Errorf("agent execution failed: %w", turnErr)
			return
		}

		r.metrics.RecordTurn("ok")
		r.logger.Info("runner.turn.complete", "session", key.String(), "run", runID, "model_calls", limiter.Count())
	}()

	return runID, eventsCh, errorsCh, nil
}

// Cancel cancels a running turn by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// lockSession waits for the session's turn slot.
func (r *Runner) lockSession(ctx context.Context, key core.SessionKey) (func(), error) {
	v, _ := r.sessionLocks.LoadOrStore(key, make(chan struct{}, 1))
	slot := v.(chan struct{})

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// processEvents persists and forwards agent events until the agent closes
// its channel. After a failure it keeps draining so the agent can observe
// cancellation and exit.
func (r *Runner) processEvents(
	runCtx *core.RunContext,
	cancel context.CancelFunc,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
) (*core.Event, error) {
	var (
		final  *core.Event
		failed error
	)

	for ev := range agentEmit {
		if failed != nil {
			continue
		}

		if !ev.IsPartial() {
			if err := r.sessionStore.AppendEvent(runCtx.Context, runCtx.Key, ev); err != nil {
				failed = fmt.Errorf("failed to append event to session: %w", err)
				cancel()
				continue
			}
			runCtx.Session.AddEvent(ev)

			if final == nil && ev.IsFinalResponse() {
				e := ev
				final = &e
			}
		}

		r.logEventActions(runCtx, ev)

		select {
		case eventsCh <- ev:
		case <-runCtx.Done():
			failed = runCtx.Err()
			continue
		}

		if !ev.IsPartial() {
			select {
			case resumeCh <- struct{}{}:
			case <-runCtx.Done():
				failed = runCtx.Err()
			}
		}
	}

	return final, failed
}

func (r *Runner) logEventActions(runCtx *core.RunContext, ev core.Event) {
	r.logger.Debug("runner.event.delivered", "event_id", ev.ID, "author", ev.Author, "session", runCtx.Key.String())

	if len(ev.Actions.StateDelta) > 0 {
		r.logger.Debug("runner.event.state_delta", "keys", len(ev.Actions.StateDelta), "session", runCtx.Key.String())
	}

	if ev.Actions.TransferToAgent != nil && *ev.Actions.TransferToAgent != "" {
		r.logger.Debug("runner.event.transfer_to_agent", "target", *ev.Actions.TransferToAgent, "session", runCtx.Key.String())
	}

	if ev.IsEscalation() {
		r.logger.Debug("runner.event.escalate", "session", runCtx.Key.String())
	}
}

func (r *Runner) runHooks(ctx context.Context, key core.SessionKey, final *core.Event) error {
	var errs []error
	for _, hook := range r.hooks {
		if err := hook(ctx, r.sessionStore, key, final); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OutputKeyHook saves the text of the turn's final response under stateKey.
// When authors are given, only final responses written by one of them count.
// Nothing is written when the final response has no text.
func OutputKeyHook(stateKey string, authors ...string) PostTurnHook {
	return func(ctx context.Context, store core.SessionStore, key core.SessionKey, final *core.Event) error {
		if final == nil || final.Content == nil {
			return nil
		}
		if len(authors) > 0 && !slices.Contains(authors, final.Author) {
			return nil
		}

		text := final.Text()
		if text == "" {
			return nil
		}

		if err := store.ApplyDelta(ctx, key, map[string]any{stateKey: text}); err != nil {
			return fmt.Errorf("save output key %s: %w", stateKey, err)
		}

		return nil
	}
}
