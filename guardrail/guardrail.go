// Package guardrail implements the policy checks that run around the root
// agent: an input guardrail that scans the latest user utterance before the
// model is called and a tool guardrail that inspects tool arguments before a
// tool executes.
//
// A guardrail that fires records a flag in session state and supplies the
// outcome itself: a canned reply for input, an error result for tools. The
// guarded model or tool call never happens.
package guardrail

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/weatherteam/core"
	internalutil "github.com/hupe1980/weatherteam/internal/util"
	"github.com/hupe1980/weatherteam/tool"
)

// Session state flags set when a guardrail fires.
const (
	StateKeyKeywordTriggered = "guardrail_block_keyword_triggered"
	StateKeyToolTriggered    = "guardrail_tool_block_triggered"
)

// Defaults.
const (
	DefaultKeyword     = "BLOCK"
	DefaultBlockedCity = "Paris"
	DefaultGuardedTool = "get_weather_stateful"
)

// Stages reported to a TripObserver.
const (
	StageInput = "input"
	StageTool  = "tool"
)

// InputGuard inspects the latest user text. A hit returns the reply that
// replaces the model's answer.
type InputGuard interface {
	Name() string
	CheckInput(text string, state core.State) (reply string, blocked bool)
}

// ToolGuard inspects a pending tool call. A hit returns the result that
// replaces the tool's.
type ToolGuard interface {
	Name() string
	CheckToolCall(toolName string, args map[string]any, state core.State) (result tool.Result, blocked bool)
}

// KeywordGuard blocks input containing a keyword, ignoring case.
type KeywordGuard struct {
	keyword string
}

// NewKeywordGuard creates a KeywordGuard; an empty keyword means DefaultKeyword.
func NewKeywordGuard(keyword string) *KeywordGuard {
	if keyword == "" {
		keyword = DefaultKeyword
	}
	return &KeywordGuard{keyword: keyword}
}

// Name returns "keyword".
func (g *KeywordGuard) Name() string { return "keyword" }

// Keyword returns the blocked keyword.
func (g *KeywordGuard) Keyword() string { return g.keyword }

// CheckInput sets StateKeyKeywordTriggered and returns a refusal when text
// contains the keyword. On a miss state is not touched.
func (g *KeywordGuard) CheckInput(text string, state core.State) (string, bool) {
	if !strings.Contains(strings.ToUpper(text), strings.ToUpper(g.keyword)) {
		return "", false
	}

	state.Set(StateKeyKeywordTriggered, true)

	return fmt.Sprintf("I cannot process this request because it contains the blocked keyword '%s'.", g.keyword), true
}

// CityGuard blocks weather lookups for one city.
type CityGuard struct {
	city  string
	tools []string
}

// NewCityGuard creates a CityGuard for city applied to the given tools
// (DefaultGuardedTool when none are named). An empty city means
// DefaultBlockedCity.
func NewCityGuard(city string, tools ...string) *CityGuard {
	if city == "" {
		city = DefaultBlockedCity
	}
	if len(tools) == 0 {
		tools = []string{DefaultGuardedTool}
	}
	return &CityGuard{city: city, tools: tools}
}

// Name returns "city".
func (g *CityGuard) Name() string { return "city" }

// CheckToolCall sets StateKeyToolTriggered and returns a policy error when a
// guarded tool is asked about the blocked city. Any other call passes.
func (g *CityGuard) CheckToolCall(toolName string, args map[string]any, state core.State) (tool.Result, bool) {
	if !slices.Contains(g.tools, toolName) {
		return tool.Result{}, false
	}

	city, ok := args["city"].(string)
	if !ok || !strings.EqualFold(city, g.city) {
		return tool.Result{}, false
	}

	state.Set(StateKeyToolTriggered, true)

	return tool.Failure(fmt.Sprintf(
		"Policy restriction: Weather checks for '%s' are currently disabled by a tool guardrail.",
		internalutil.Capitalize(city),
	)), true
}
