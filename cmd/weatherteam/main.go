// Command weatherteam runs the weather agent team through one of the
// tutorial conversations or an interactive prompt.
//
//	weatherteam --scenario guardrail
//	weatherteam --provider openai --weather-mode live --scenario interactive
//	weatherteam --otlp-endpoint http://localhost:4318 --scenario team
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/logging"
	"github.com/hupe1980/weatherteam/metrics"
	"github.com/hupe1980/weatherteam/team"
	"github.com/hupe1980/weatherteam/tracing"
	"github.com/hupe1980/weatherteam/weather"
)

// step is one user utterance, optionally preceded by a state update.
type step struct {
	query    string
	setState map[string]any
}

var scenarios = map[string][]step{
	"team": {
		{query: "Hello there!"},
		{query: "What is the weather in New York?"},
		{query: "Thanks, bye!"},
	},
	"stateful": {
		{query: "What's the weather in London?"},
		{query: "Tell me the weather in New York.", setState: map[string]any{weather.StateKeyUnit: string(weather.Fahrenheit)}},
		{query: "Hi!"},
	},
	"guardrail": {
		{query: "What is the weather in London?"},
		{query: "BLOCK the request for weather in Tokyo"},
		{query: "Hello again"},
	},
	"tool-guardrail": {
		{query: "What's the weather in New York?"},
		{query: "How about Paris?"},
		{query: "Tell me the weather in London."},
	},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "weatherteam: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("weatherteam", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	scenario := fs.String("scenario", "tool-guardrail", "team, stateful, guardrail, tool-guardrail or interactive")
	verbose := fs.BoolP("verbose", "v", false, "print every event of a turn")
	fs.String("provider", "", "model provider: rules, openai or anthropic")
	fs.String("model", "", "model name for the provider")
	fs.String("weather-mode", "", "weather source: mock or live")
	fs.String("store", "", "session store: memory or redis")
	fs.String("redis-addr", "", "redis address for the redis store")
	fs.String("session-id", "", "conversation session id")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "text or json")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.String("otlp-endpoint", "", "export traces to this OTLP/HTTP collector, e.g. http://localhost:4318")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	v := viper.New()
	for key, flag := range map[string]string{
		"model.provider":     "provider",
		"model.name":         "model",
		"weather.mode":       "weather-mode",
		"session.store":      "store",
		"session.redis_addr": "redis-addr",
		"app.session_id":     "session-id",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"metrics.addr":       "metrics-addr",
		"tracing.endpoint":   "otlp-endpoint",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}

	cfg, err := team.LoadConfig(v, *configPath)
	if err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.NewLogger(&logging.Config{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: "weatherteam",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing.shutdown.error", "error", err.Error())
		}
	}()

	var collector *metrics.Collector
	if cfg.Metrics.Addr != "" {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, nil)
		srv := serveMetrics(cfg.Metrics.Addr, collector, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tm, err := team.New(ctx, cfg, func(o *team.Options) {
		o.Logger = logger
		o.Metrics = collector
		if *verbose {
			o.OnEvent = printEvent(os.Stdout)
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = tm.Close() }()

	if *scenario == "interactive" {
		return interactive(ctx, tm, os.Stdin, os.Stdout)
	}

	steps, ok := scenarios[*scenario]
	if !ok {
		return fmt.Errorf("unknown scenario %q", *scenario)
	}

	if err := printState(ctx, tm, os.Stdout, "Initial"); err != nil {
		return err
	}

	for _, s := range steps {
		for k, val := range s.setState {
			if err := tm.SetState(ctx, k, val); err != nil {
				return err
			}
			fmt.Printf("\n--- Updated state: %s = %v ---\n", k, val)
		}
		if err := converse(ctx, tm, os.Stdout, s.query); err != nil {
			return err
		}
	}

	return printState(ctx, tm, os.Stdout, "Final")
}

func serveMetrics(addr string, c *metrics.Collector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics.listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.server.error", "error", err.Error())
		}
	}()

	return srv
}

func converse(ctx context.Context, tm *team.Team, w io.Writer, query string) error {
	fmt.Fprintf(w, "\n>>> User Query: %s\n", query)

	answer, err := tm.Ask(ctx, query)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "<<< Agent Response: %s\n", answer)

	return nil
}

func interactive(ctx context.Context, tm *team.Team, r io.Reader, w io.Writer) error {
	fmt.Fprintln(w, "Ask about the weather; an empty line or 'exit' quits.")

	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "exit" {
			return printState(ctx, tm, w, "Final")
		}

		if err := converse(ctx, tm, w, line); err != nil {
			return err
		}
	}
}

func printState(ctx context.Context, tm *team.Team, w io.Writer, label string) error {
	state, err := tm.State(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n--- %s Session State (%s) ---\n", label, tm.SessionKey())
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, state[k])
	}

	return nil
}

func printEvent(w io.Writer) func(core.Event) {
	return func(ev core.Event) {
		if ev.IsPartial() {
			return
		}
		for _, fc := range ev.GetFunctionCalls() {
			fmt.Fprintf(w, "  [%s] calls %s(%s)\n", ev.Author, fc.Name, fc.Arguments)
		}
		for _, fr := range ev.GetFunctionResponses() {
			fmt.Fprintf(w, "  [%s] %s returned\n", ev.Author, fr.Name)
		}
		if text := ev.Text(); text != "" {
			fmt.Fprintf(w, "  [%s] %s\n", ev.Author, text)
		}
	}
}
