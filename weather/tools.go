package weather

import (
	"fmt"

	"github.com/hupe1980/weatherteam/core"
	internalutil "github.com/hupe1980/weatherteam/internal/util"
	"github.com/hupe1980/weatherteam/tool"
)

// Tool names.
const (
	ToolGetWeather         = "get_weather"
	ToolGetWeatherStateful = "get_weather_stateful"
)

func cityParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": `The name of the city (e.g., "New York", "London", "Tokyo").`,
			},
		},
		"required": []string{"city"},
	}
}

// NewGetWeatherTool exposes Lookup over src as get_weather.
func NewGetWeatherTool(src Source) tool.Tool {
	return tool.NewFunctionTool(
		ToolGetWeather,
		"Retrieves the current weather report for a specified city. Returns a status of 'success' with a report, or 'error' with an error_message.",
		cityParameters(),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return Lookup(tc.Context(), src, tool.StringArg(args, "city", "")), nil
		},
	)
}

// StatefulReport resolves city through src and renders the report in the
// unit preferred by state. On success the city, as given, is recorded under
// StateKeyLastCity; on failure state is left untouched.
func StatefulReport(tc *core.ToolContext, src Source, city string) tool.Result {
	unit := UnitFromState(tc)

	rec, err := src.Fetch(tc.Context(), city)
	if err != nil {
		tc.LogDebug("weather.stateful.miss", "city", city, "error", err.Error())
		return tool.Failure(err.Error())
	}

	report := fmt.Sprintf("The weather in %s is %s with a temperature of %s.",
		internalutil.Capitalize(city), rec.Condition, unit.Format(rec.TemperatureC))

	tc.Set(StateKeyLastCity, city)
	tc.LogDebug("weather.stateful.hit", "city", city, "unit", string(unit))

	return tool.Success(report)
}

// NewStatefulTool exposes StatefulReport as get_weather_stateful.
func NewStatefulTool(src Source) tool.Tool {
	return tool.NewFunctionTool(
		ToolGetWeatherStateful,
		"Retrieves weather and formats the temperature in the unit stored in session state.",
		cityParameters(),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return StatefulReport(tc, src, tool.StringArg(args, "city", "")), nil
		},
	)
}
