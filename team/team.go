// Package team is the composition root of the weather assistant. It turns a
// validated Config into a running agent team: the root weather agent with
// its guardrails, the greeting and farewell specialists, a session store, a
// weather source and a runner, and it offers a blocking Ask for one turn.
package team

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/weatherteam/agent"
	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/flow"
	"github.com/hupe1980/weatherteam/guardrail"
	"github.com/hupe1980/weatherteam/logging"
	"github.com/hupe1980/weatherteam/metrics"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/model/anthropic"
	"github.com/hupe1980/weatherteam/model/openai"
	"github.com/hupe1980/weatherteam/runner"
	"github.com/hupe1980/weatherteam/session"
	"github.com/hupe1980/weatherteam/weather"
)

// Answers used when a turn ends without a usable final text.
const (
	NoFinalResponse    = "Agent did not produce a final response."
	noEscalationReason = "No specific message."
)

// Options overrides collaborators built from Config.
type Options struct {
	// Model replaces the configured provider for every agent.
	Model model.Model
	// SessionStore replaces the configured store.
	SessionStore core.SessionStore
	// Weather replaces the configured weather source.
	Weather weather.Source
	Logger  logging.Logger
	Metrics *metrics.Collector
	// OnEvent sees every event of every turn, partial ones included.
	OnEvent func(core.Event)
	// Hooks run after the output-key hook at the end of every turn.
	Hooks []runner.PostTurnHook
}

// Team is a ready to use weather agent team bound to one session.
type Team struct {
	cfg     Config
	key     core.SessionKey
	root    *agent.ModelAgent
	runner  *runner.Runner
	store   core.SessionStore
	logger  logging.Logger
	onEvent func(core.Event)
	closers []func() error
}

// New validates cfg, wires the team and ensures its session exists with
// the configured initial temperature unit.
func New(ctx context.Context, cfg Config, optFns ...func(o *Options)) (*Team, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	t := &Team{
		cfg:     cfg,
		key:     cfg.SessionKey(),
		logger:  opts.Logger,
		onEvent: opts.OnEvent,
	}

	store, err := t.sessionStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	t.store = store

	models, err := modelFactory(cfg.Model, opts)
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	chain := guardrail.NewChain(func(o *guardrail.ChainOptions) {
		o.Logger = opts.Logger
		if opts.Metrics != nil {
			o.Observer = opts.Metrics
		}
	}).
		AddInput(guardrail.NewKeywordGuard(cfg.Guardrail.Keyword)).
		AddTool(guardrail.NewCityGuard(cfg.Guardrail.BlockedCity))

	var flowOpts []flow.Option
	if opts.Metrics != nil {
		flowOpts = append(flowOpts, flow.WithFunctionExecutor(flow.NewParallelFunctionExecutor(flow.FunctionExecutorConfig{
			Observer: opts.Metrics.ToolObserver(),
		})))
	}

	root, err := NewAgents(AgentSpec{
		Models:      models,
		Weather:     weatherSource(cfg.Weather, opts),
		Callbacks:   chain.Callbacks(),
		FlowOptions: flowOpts,
	})
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	t.root = root

	t.runner = runner.New(root, func(o *runner.Options) {
		o.SessionStore = store
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.MaxModelCalls = cfg.Runner.MaxModelCalls
		o.ModelCallsPerSecond = cfg.Runner.ModelCallsPerSecond
		o.Hooks = opts.Hooks
	})

	if err := t.ensureSession(ctx); err != nil {
		_ = t.Close()
		return nil, err
	}

	opts.Logger.Info("team.ready",
		"root", root.Name(),
		"provider", cfg.Model.Provider,
		"weather", cfg.Weather.Mode,
		"store", cfg.Session.Store,
		"session", t.key.String(),
	)

	return t, nil
}

func (t *Team) sessionStore(ctx context.Context, opts Options) (core.SessionStore, error) {
	if opts.SessionStore != nil {
		return opts.SessionStore, nil
	}

	if t.cfg.Session.Store != StoreRedis {
		return session.NewInMemoryStore(), nil
	}

	sc := t.cfg.Session
	rs, err := session.NewRedisStoreFromAddr(ctx, sc.RedisAddr, sc.RedisPassword, sc.RedisDB, func(o *session.RedisOptions) {
		o.KeyPrefix = sc.KeyPrefix
		o.TTL = sc.TTL
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect session store: %w", err)
	}
	t.closers = append(t.closers, rs.Close)

	return rs, nil
}

func (t *Team) ensureSession(ctx context.Context) error {
	_, err := t.store.Get(ctx, t.key)
	if err == nil {
		t.logger.Info("team.session.resumed", "session", t.key.String())
		return nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) {
		return fmt.Errorf("failed to load session: %w", err)
	}

	initial := map[string]any{weather.StateKeyUnit: t.cfg.Session.InitialUnit}
	if _, err := t.store.Create(ctx, t.key, initial); err != nil && !errors.Is(err, core.ErrSessionExists) {
		return fmt.Errorf("failed to create session: %w", err)
	}

	t.logger.Info("team.session.created", "session", t.key.String(), "unit", t.cfg.Session.InitialUnit)

	return nil
}

func modelFactory(cfg ModelConfig, opts Options) (ModelFactory, error) {
	base := opts.Model
	if base == nil {
		var err error
		if base, err = newModel(cfg); err != nil {
			return nil, err
		}
	}

	return func(agentName string) model.Model {
		return metrics.InstrumentModel(base, opts.Metrics, agentName)
	}, nil
}

func newModel(cfg ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case ProviderRules:
		return NewRulesModel(), nil
	case ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
		}), nil
	case ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func weatherSource(cfg WeatherConfig, opts Options) weather.Source {
	if opts.Weather != nil {
		return opts.Weather
	}

	if cfg.Mode != WeatherLive {
		return weather.NewMockTable()
	}

	return weather.NewClient(cfg.APIKey, func(o *weather.ClientOptions) {
		if cfg.BaseURL != "" {
			o.BaseURL = cfg.BaseURL
		}
		if cfg.Timeout > 0 {
			o.Timeout = cfg.Timeout
		}
		o.MaxAttempts = cfg.MaxAttempts
		o.Logger = opts.Logger
		if opts.Metrics != nil {
			o.Observer = opts.Metrics
		}
	})
}

// Ask runs one turn for query and returns the text of the turn's first
// final response. An escalation yields "Agent escalated: <reason>"; a turn
// without any final response yields NoFinalResponse. Errors are framework
// failures, not tool outcomes.
func (t *Team) Ask(ctx context.Context, query string) (string, error) {
	t.logger.Info("team.ask", "session", t.key.String(), "query", query)

	_, events, errs, err := t.runner.Run(ctx, t.key, core.NewTextContent(core.RoleUser, query))
	if err != nil {
		return "", err
	}

	answer := NoFinalResponse
	answered := false

	for ev := range events {
		if t.onEvent != nil {
			t.onEvent(ev)
		}
		if answered {
			continue
		}
		answer, answered = finalAnswer(ev, answer)
	}

	var runErr error
	for e := range errs {
		runErr = errors.Join(runErr, e)
	}

	if runErr != nil {
		return answer, runErr
	}

	return answer, nil
}

// finalAnswer reports whether ev concludes the turn and, if so, the answer it
// carries. An escalation ends the agent's part of the turn even though it
// rides on a tool response event.
func finalAnswer(ev core.Event, fallback string) (string, bool) {
	if ev.IsPartial() {
		return fallback, false
	}

	if ev.IsFinalResponse() && ev.Text() != "" {
		return ev.Text(), true
	}

	if ev.IsEscalation() {
		reason := noEscalationReason
		if ev.ErrorMessage != nil && *ev.ErrorMessage != "" {
			reason = *ev.ErrorMessage
		}
		return "Agent escalated: " + reason, true
	}

	return fallback, ev.IsFinalResponse()
}

// State returns a snapshot of the session state.
func (t *Team) State(ctx context.Context) (map[string]any, error) {
	sess, err := t.store.Get(ctx, t.key)
	if err != nil {
		return nil, err
	}
	return sess.StateSnapshot(), nil
}

// SetState writes one state key outside of a turn, e.g. to switch the
// preferred temperature unit between turns.
func (t *Team) SetState(ctx context.Context, key string, value any) error {
	if err := t.store.ApplyDelta(ctx, t.key, map[string]any{key: value}); err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	t.logger.Info("team.state.updated", "key", key)
	return nil
}

// SessionKey returns the session the team talks in.
func (t *Team) SessionKey() core.SessionKey { return t.key }

// Root returns the root agent.
func (t *Team) Root() *agent.ModelAgent { return t.root }

// Runner returns the underlying runner.
func (t *Team) Runner() *runner.Runner { return t.runner }

// Close releases connections opened by New.
func (t *Team) Close() error {
	var err error
	for _, c := range t.closers {
		err = errors.Join(err, c())
	}
	t.closers = nil
	return err
}
