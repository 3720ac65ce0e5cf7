package weather

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/internal/testutil"
	"github.com/hupe1980/weatherteam/tool"
)

func newToolContext(state map[string]any) *core.ToolContext {
	b := testutil.NewSessionBuilder()
	for k, v := range state {
		b.State(k, v)
	}
	sess := b.Build()
	rc := core.NewRunContext(context.Background(), sess.Key, "run", core.AgentInfo{Name: "weather_agent"},
		core.NewTextContent(core.RoleUser, "weather?"), nil, nil, sess, nil, nil, nil)
	return core.NewToolContext(rc, "fc-1")
}

func callTool(t *testing.T, tl tool.Tool, tc *core.ToolContext, city string) tool.Result {
	t.Helper()
	out, err := tl.Call(tc, map[string]any{"city": city})
	require.NoError(t, err)
	res, ok := tool.ResultFrom(out)
	require.True(t, ok)
	return res
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "newyork", Normalize("New York"))
	assert.Equal(t, "newyork", Normalize(" new  york "))
	assert.Equal(t, "london", Normalize("LONDON"))
}

func TestGetWeather_KnownCities(t *testing.T) {
	gw := NewGetWeatherTool(NewMockTable())

	cases := map[string]string{
		"New York": "The weather in New York is sunny with a temperature of 25°C.",
		"london":   "It's cloudy in London with a temperature of 15°C.",
		"TOKYO":    "Tokyo is experiencing light rain and a temperature of 18°C.",
	}
	for city, want := range cases {
		res := callTool(t, gw, newToolContext(nil), city)
		assert.True(t, res.IsSuccess(), city)
		assert.Equal(t, want, res.Report, city)
	}
}

func TestGetWeather_UnknownCity(t *testing.T) {
	res := callTool(t, NewGetWeatherTool(NewMockTable()), newToolContext(nil), "Paris")
	assert.False(t, res.IsSuccess())
	assert.Equal(t, "Sorry, I don't have weather information for 'Paris'.", res.ErrorMessage)
	assert.Empty(t, res.Report)
}

func TestGetWeather_MissingCityIsValidationError(t *testing.T) {
	_, err := NewGetWeatherTool(NewMockTable()).Call(newToolContext(nil), map[string]any{})
	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeValidation, te.Code)
}

func TestStateful_DefaultsToCelsius(t *testing.T) {
	tc := newToolContext(nil)
	res := callTool(t, NewStatefulTool(NewMockTable()), tc, "new york")

	require.True(t, res.IsSuccess())
	assert.Equal(t, "The weather in New york is sunny with a temperature of 25°C.", res.Report)
	assert.Equal(t, "new york", core.GetString(tc, StateKeyLastCity, ""))
}

func TestStateful_Fahrenheit(t *testing.T) {
	tc := newToolContext(map[string]any{StateKeyUnit: "Fahrenheit"})
	res := callTool(t, NewStatefulTool(NewMockTable()), tc, "new york")

	require.True(t, res.IsSuccess())
	assert.True(t, strings.HasSuffix(res.Report, "77°F."), res.Report)
	assert.Equal(t, map[string]any{StateKeyLastCity: "new york"}, tc.StateDelta())
}

func TestStateful_UnknownUnitFallsBackToCelsius(t *testing.T) {
	tc := newToolContext(map[string]any{StateKeyUnit: "Kelvin"})
	res := callTool(t, NewStatefulTool(NewMockTable()), tc, "Tokyo")
	assert.Equal(t, "The weather in Tokyo is light rain with a temperature of 18°C.", res.Report)
}

func TestStateful_FailureLeavesStateUntouched(t *testing.T) {
	tc := newToolContext(nil)
	res := callTool(t, NewStatefulTool(NewMockTable()), tc, "Atlantis")

	assert.False(t, res.IsSuccess())
	assert.Contains(t, res.ErrorMessage, "'Atlantis'")
	_, ok := tc.Get(StateKeyLastCity)
	assert.False(t, ok)
	assert.Empty(t, tc.StateDelta())
}

func TestStateful_FailureKeepsPreviousCity(t *testing.T) {
	tc := newToolContext(map[string]any{StateKeyLastCity: "London"})
	callTool(t, NewStatefulTool(NewMockTable()), tc, "Atlantis")
	assert.Equal(t, "London", core.GetString(tc, StateKeyLastCity, ""))
}

func TestStateful_Idempotent(t *testing.T) {
	st := NewStatefulTool(NewMockTable())
	tc := newToolContext(map[string]any{StateKeyUnit: "Fahrenheit"})

	first := callTool(t, st, tc, "London")
	second := callTool(t, st, tc, "London")
	assert.Equal(t, first, second)
	assert.Equal(t, "The weather in London is cloudy with a temperature of 59°F.", first.Report)
}

func TestUnit(t *testing.T) {
	assert.Equal(t, Celsius, UnitFromState(core.MapState{}))
	assert.Equal(t, Fahrenheit, UnitFromState(core.MapState{StateKeyUnit: "Fahrenheit"}))
	assert.Equal(t, Celsius, UnitFromState(core.MapState{StateKeyUnit: "fahrenheit"}))
	assert.Equal(t, Celsius, UnitFromState(core.MapState{StateKeyUnit: 42}))

	_, ok := ParseUnit("Kelvin")
	assert.False(t, ok)

	assert.Equal(t, "64°F", Fahrenheit.Format(18))
	assert.Equal(t, "0°C", Celsius.Format(0.5))
	assert.Equal(t, "2°C", Celsius.Format(1.5))
}

func TestRecord_Describe(t *testing.T) {
	rec := Record{City: "Berlin", Condition: "partly cloudy", TemperatureC: 12.5}
	assert.Equal(t, "The weather in Berlin is partly cloudy with a temperature of 12.5°C.", rec.Describe())
}

func TestProperty_FahrenheitWithinHalfDegree(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := rapid.Float64Range(-80, 60).Draw(rt, "celsius")
		exact := c*9/5 + 32
		got := Fahrenheit.Convert(c)
		if math.Abs(float64(got)-exact) > 0.5 {
			rt.Fatalf("Convert(%v) = %d, exact %v", c, got, exact)
		}
	})
}

func TestProperty_IntegerCelsiusIsExact(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := rapid.IntRange(-80, 60).Draw(rt, "celsius")
		if got := Celsius.Convert(float64(c)); got != c {
			rt.Fatalf("Celsius.Convert(%d) = %d", c, got)
		}
	})
}

func TestProperty_NormalizationIgnoresCaseAndSpaces(t *testing.T) {
	table := NewMockTable()
	names := []string{"New York", "London", "Tokyo"}

	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.SampledFrom(names).Draw(rt, "city")

		var b strings.Builder
		for _, r := range name {
			if rapid.Bool().Draw(rt, "upper") {
				b.WriteString(strings.ToUpper(string(r)))
			} else {
				b.WriteString(strings.ToLower(string(r)))
			}
			if rapid.IntRange(0, 4).Draw(rt, "space") == 0 {
				b.WriteByte(' ')
			}
		}

		if _, err := table.Fetch(context.Background(), b.String()); err != nil {
			rt.Fatalf("Fetch(%q): %v", b.String(), err)
		}
	})
}

func TestProperty_UnknownCityMessageKeepsInput(t *testing.T) {
	table := NewMockTable()

	rapid.Check(t, func(rt *rapid.T) {
		city := "X" + rapid.StringMatching(`[A-Za-z ]{0,12}`).Draw(rt, "city")

		_, err := table.Fetch(context.Background(), city)
		if !IsKind(err, KindUnknownCity) {
			rt.Fatalf("expected unknown city error for %q, got %v", city, err)
		}
		if want := fmt.Sprintf("Sorry, I don't have weather information for '%s'.", city); err.Error() != want {
			rt.Fatalf("message %q, want %q", err.Error(), want)
		}
	})
}
