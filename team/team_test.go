package team

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/guardrail"
	"github.com/hupe1980/weatherteam/internal/testutil"
	"github.com/hupe1980/weatherteam/metrics"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/session"
	"github.com/hupe1980/weatherteam/weather"
)

const (
	londonCelsius     = "The weather in London is cloudy with a temperature of 15°C."
	newYorkCelsius    = "The weather in New york is sunny with a temperature of 25°C."
	newYorkFahrenheit = "The weather in New york is sunny with a temperature of 77°F."
	parisBlocked      = "Sorry, I couldn't get that for you. Policy restriction: Weather checks for 'Paris' are currently disabled by a tool guardrail."
	keywordBlocked    = "I cannot process this request because it contains the blocked keyword 'BLOCK'."
)

func newTeam(t *testing.T, optFns ...func(o *Options)) *Team {
	t.Helper()
	tm, err := New(context.Background(), DefaultConfig(), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })
	return tm
}

func ask(t *testing.T, tm *Team, query string) string {
	t.Helper()
	answer, err := tm.Ask(context.Background(), query)
	require.NoError(t, err)
	return answer
}

func state(t *testing.T, tm *Team) map[string]any {
	t.Helper()
	s, err := tm.State(context.Background())
	require.NoError(t, err)
	return s
}

func TestNew_CreatesSessionWithInitialUnit(t *testing.T) {
	tm := newTeam(t)

	assert.Equal(t, RootAgentName, tm.Root().Name())
	assert.Equal(t, "Celsius", state(t, tm)[weather.StateKeyUnit])
	assert.Equal(t, DefaultConfig().SessionKey(), tm.SessionKey())
}

func TestNew_ResumesExistingSession(t *testing.T) {
	store := session.NewInMemoryStore()
	key := DefaultConfig().SessionKey()
	_, err := store.Create(context.Background(), key, map[string]any{weather.StateKeyUnit: "Fahrenheit"})
	require.NoError(t, err)

	tm := newTeam(t, func(o *Options) { o.SessionStore = store })

	assert.Equal(t, "Fahrenheit", state(t, tm)[weather.StateKeyUnit])
	assert.Equal(t, newYorkFahrenheit, ask(t, tm, "What is the weather in New York?"))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weather.Mode = "psychic"

	_, err := New(context.Background(), cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultConfig()
	cfg.Session.Store = StoreRedis
	cfg.Session.RedisAddr = addr

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestTeam_Delegation(t *testing.T) {
	var (
		mu      sync.Mutex
		authors []string
	)
	tm := newTeam(t, func(o *Options) {
		o.OnEvent = func(ev core.Event) {
			mu.Lock()
			defer mu.Unlock()
			authors = append(authors, ev.Author)
		}
	})

	assert.Equal(t, "Hello there!", ask(t, tm, "Hello there!"))
	assert.Equal(t, newYorkCelsius, ask(t, tm, "What is the weather in New York?"))
	assert.Equal(t, "Goodbye! Have a great day.", ask(t, tm, "Thanks, bye!"))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, authors, GreetingAgentName)
	assert.Contains(t, authors, FarewellAgentName)
	assert.Contains(t, authors, RootAgentName)
}

func TestTeam_StatefulUnits(t *testing.T) {
	tm := newTeam(t)
	ctx := context.Background()

	assert.Equal(t, londonCelsius, ask(t, tm, "What's the weather in London?"))
	s := state(t, tm)
	assert.Equal(t, "London", s[weather.StateKeyLastCity])
	assert.Equal(t, londonCelsius, s[StateKeyLastReport])

	require.NoError(t, tm.SetState(ctx, weather.StateKeyUnit, "Fahrenheit"))

	assert.Equal(t, newYorkFahrenheit, ask(t, tm, "Tell me the weather in New York."))
	s = state(t, tm)
	assert.Equal(t, "New York", s[weather.StateKeyLastCity])
	assert.Equal(t, newYorkFahrenheit, s[StateKeyLastReport])

	assert.Equal(t, "Hello there!", ask(t, tm, "Hi!"))
	s = state(t, tm)
	assert.Equal(t, "Fahrenheit", s[weather.StateKeyUnit])
	assert.Equal(t, "New York", s[weather.StateKeyLastCity])
	assert.Equal(t, newYorkFahrenheit, s[StateKeyLastReport], "only the root agent's replies are saved")
}

func TestTeam_UnknownCityKeepsLastCity(t *testing.T) {
	tm := newTeam(t)

	ask(t, tm, "What's the weather in London?")
	answer := ask(t, tm, "What's the weather in Atlantis?")

	assert.Equal(t, "Sorry, I couldn't get that for you. Sorry, I don't have weather information for 'Atlantis'.", answer)
	assert.Equal(t, "London", state(t, tm)[weather.StateKeyLastCity])
}

func TestTeam_KeywordGuardrail(t *testing.T) {
	scripted := model.NewScriptedModel("never")
	tm := newTeam(t, func(o *Options) { o.Model = scripted })

	assert.Equal(t, keywordBlocked, ask(t, tm, "BLOCK the request for weather in Tokyo"))
	assert.Zero(t, scripted.Calls(), "a blocked turn never reaches the model")

	s := state(t, tm)
	assert.Equal(t, true, s[guardrail.StateKeyKeywordTriggered])
	assert.Equal(t, keywordBlocked, s[StateKeyLastReport])
	assert.NotContains(t, s, weather.StateKeyLastCity)
}

func TestTeam_GuardrailScenario(t *testing.T) {
	tm := newTeam(t)

	assert.Equal(t, londonCelsius, ask(t, tm, "What is the weather in London?"))
	assert.Equal(t, keywordBlocked, ask(t, tm, "BLOCK the request for weather in Tokyo"))
	assert.Equal(t, "Hello there!", ask(t, tm, "Hello again"))

	s := state(t, tm)
	assert.Equal(t, true, s[guardrail.StateKeyKeywordTriggered])
	assert.Equal(t, "London", s[weather.StateKeyLastCity])
}

func TestTeam_ToolGuardrailScenario(t *testing.T) {
	c := metrics.NewCollector("weatherteam", nil)
	tm := newTeam(t, func(o *Options) { o.Metrics = c })

	assert.Equal(t, newYorkCelsius, ask(t, tm, "What's the weather in New York?"))
	assert.Equal(t, parisBlocked, ask(t, tm, "How about Paris?"))

	s := state(t, tm)
	assert.Equal(t, true, s[guardrail.StateKeyToolTriggered])
	assert.Equal(t, "New York", s[weather.StateKeyLastCity])

	assert.Equal(t, londonCelsius, ask(t, tm, "Tell me the weather in London."))
	assert.Equal(t, "London", state(t, tm)[weather.StateKeyLastCity])

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `weatherteam_guardrail_trips_total{guardrail="city",stage="tool"} 1`)
	assert.Contains(t, body, `weatherteam_tool_calls_total{status="blocked",tool="get_weather_stateful"} 1`)
	assert.Contains(t, body, `weatherteam_tool_calls_total{status="success",tool="get_weather_stateful"} 2`)
	assert.Contains(t, body, `weatherteam_turns_total{outcome="ok"} 3`)
	assert.Contains(t, body, `weatherteam_model_calls_total{agent="weather_agent_v6_tool_guardrail"} 6`)
}

func TestTeam_ScriptedModelSeesGuardedToolResult(t *testing.T) {
	scripted := model.NewScriptedModel("scripted",
		model.CallTool("c1", weather.ToolGetWeatherStateful, map[string]any{"city": "paris"}),
		model.Reply("Paris is off limits."),
	)
	tm := newTeam(t, func(o *Options) { o.Model = scripted })

	assert.Equal(t, "Paris is off limits.", ask(t, tm, "How is Paris?"))

	reqs := scripted.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].HasTool(weather.ToolGetWeatherStateful))
	assert.Contains(t, reqs[0].Instructions, GreetingAgentName)

	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	require.Equal(t, core.RoleTool, last.Role)
	assert.Contains(t, model.EncodeToolResponse(last.Parts[0].(core.FunctionResponsePart).FunctionResponse), "Policy restriction")
	assert.Equal(t, true, state(t, tm)[guardrail.StateKeyToolTriggered])
}

func TestTeam_ModelFailure(t *testing.T) {
	tm := newTeam(t, func(o *Options) {
		o.Model = model.NewScriptedModel("broken", model.Fail(errors.New("quota exceeded")))
	})

	answer, err := tm.Ask(context.Background(), "What is the weather in London?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, NoFinalResponse, answer)
}

func TestTeam_EmptyReply(t *testing.T) {
	tm := newTeam(t, func(o *Options) {
		o.Model = model.NewScriptedModel("quiet", model.Reply(""))
	})

	assert.Equal(t, NoFinalResponse, ask(t, tm, "What is the weather in London?"))
}

func TestTeam_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Session.Store = StoreRedis
	cfg.Session.RedisAddr = mr.Addr()

	tm, err := New(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, londonCelsius, ask(t, tm, "What's the weather in London?"))
	require.NoError(t, tm.Close())

	again, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close() })

	s := state(t, again)
	assert.Equal(t, "Celsius", s[weather.StateKeyUnit])
	assert.Equal(t, "London", s[weather.StateKeyLastCity])
	assert.Equal(t, londonCelsius, s[StateKeyLastReport])

	assert.Equal(t, "Hello there!", ask(t, again, "Hi!"))
}

func TestFinalAnswer(t *testing.T) {
	cases := []struct {
		name      string
		ev        core.Event
		want      string
		concludes bool
	}{
		{"text", testutil.NewEventBuilder().AssistantText("Sunny.").Build(), "Sunny.", true},
		{"partial", testutil.NewEventBuilder().AssistantText("Sun").Partial(true).Build(), NoFinalResponse, false},
		{"tool call", testutil.NewEventBuilder().FunctionCall("c1", "get_weather", `{}`).Build(), NoFinalResponse, false},
		{"escalation", testutil.NewEventBuilder().FunctionResponse("c1", "x", nil, nil).Escalate().Build(), "Agent escalated: No specific message.", true},
		{"empty", testutil.NewEventBuilder().AssistantText("").Build(), NoFinalResponse, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := finalAnswer(tc.ev, NoFinalResponse)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.concludes, ok)
		})
	}
}

func TestFinalAnswer_EscalationReason(t *testing.T) {
	ev := core.NewErrorEvent("run", RootAgentName, "ESCALATED", "needs a human")
	escalate := true
	ev.Actions.Escalate = &escalate

	got, ok := finalAnswer(ev, NoFinalResponse)
	assert.True(t, ok)
	assert.Equal(t, "Agent escalated: needs a human", got)
}
