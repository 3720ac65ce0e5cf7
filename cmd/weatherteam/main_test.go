package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/weatherteam/internal/testutil"
	"github.com/hupe1980/weatherteam/team"
)

func newTeam(t *testing.T) *team.Team {
	t.Helper()
	tm, err := team.New(context.Background(), team.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })
	return tm
}

func TestScenariosAreKnown(t *testing.T) {
	for _, name := range []string{"team", "stateful", "guardrail", "tool-guardrail"} {
		assert.NotEmpty(t, scenarios[name], name)
	}
}

func TestConverse(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, converse(context.Background(), newTeam(t), &out, "How about Paris?"))

	assert.Contains(t, out.String(), ">>> User Query: How about Paris?")
	assert.Contains(t, out.String(), "<<< Agent Response: Sorry, I couldn't get that for you. Policy restriction")
}

func TestInteractive(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("Hello there!\nWhat is the weather in Tokyo?\nexit\n")

	require.NoError(t, interactive(context.Background(), newTeam(t), in, &out))

	got := out.String()
	assert.Contains(t, got, "<<< Agent Response: Hello there!")
	assert.Contains(t, got, "<<< Agent Response: The weather in Tokyo is light rain with a temperature of 18°C.")
	assert.Contains(t, got, "last_city_checked_stateful: Tokyo")
	assert.Contains(t, got, "--- Final Session State (weather_tutorial_app/user_state_demo/session_state_demo_001) ---")
}

func TestPrintEvent(t *testing.T) {
	var out bytes.Buffer
	emit := printEvent(&out)

	emit(testutil.NewEventBuilder().Author("weather_agent").FunctionCall("c1", "get_weather_stateful", `{"city":"London"}`).Build())
	emit(testutil.NewEventBuilder().Author("weather_agent").AssistantText("Cloudy.").Build())
	emit(testutil.NewEventBuilder().Author("weather_agent").AssistantText("Clo").Partial(true).Build())

	assert.Equal(t, "  [weather_agent] calls get_weather_stateful({\"city\":\"London\"})\n  [weather_agent] Cloudy.\n", out.String())
}
