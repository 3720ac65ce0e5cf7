package guardrail

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/internal/testutil"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

type trips struct {
	mu   sync.Mutex
	seen []string
}

func (t *trips) RecordGuardrailTrip(guardrail, stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = append(t.seen, guardrail+"/"+stage)
}

func newRunContext(userText string) *core.RunContext {
	sess := testutil.NewSessionBuilder().Build()
	return core.NewRunContext(context.Background(), sess.Key, "run", core.AgentInfo{Name: "weather_agent"},
		core.NewTextContent(core.RoleUser, userText), nil, nil, sess, nil, nil, nil)
}

func TestKeywordGuard_Blocks(t *testing.T) {
	state := core.MapState{}
	reply, blocked := NewKeywordGuard("").CheckInput("please BLOCK this", state)

	require.True(t, blocked)
	assert.Equal(t, "I cannot process this request because it contains the blocked keyword 'BLOCK'.", reply)
	assert.Equal(t, true, state[StateKeyKeywordTriggered])
}

func TestKeywordGuard_MissLeavesStateUntouched(t *testing.T) {
	state := core.MapState{}
	_, blocked := NewKeywordGuard("BLOCK").CheckInput("hello", state)

	assert.False(t, blocked)
	assert.Empty(t, state)
}

func TestKeywordGuard_EmptyText(t *testing.T) {
	_, blocked := NewKeywordGuard("BLOCK").CheckInput("", core.MapState{})
	assert.False(t, blocked)
}

func TestKeywordGuard_CustomKeyword(t *testing.T) {
	g := NewKeywordGuard("forbidden")
	reply, blocked := g.CheckInput("This is FORBIDDEN territory", core.MapState{})
	require.True(t, blocked)
	assert.Contains(t, reply, "'forbidden'")
}

func TestCityGuard_BlocksParis(t *testing.T) {
	state := core.MapState{}
	res, blocked := NewCityGuard("").CheckToolCall("get_weather_stateful", map[string]any{"city": "Paris"}, state)

	require.True(t, blocked)
	assert.Equal(t, tool.StatusError, res.Status)
	assert.Equal(t, "Policy restriction: Weather checks for 'Paris' are currently disabled by a tool guardrail.", res.ErrorMessage)
	assert.Equal(t, true, state[StateKeyToolTriggered])
}

func TestCityGuard_CapitalizesCity(t *testing.T) {
	res, blocked := NewCityGuard("Paris").CheckToolCall("get_weather_stateful", map[string]any{"city": "pARIS"}, core.MapState{})
	require.True(t, blocked)
	assert.Contains(t, res.ErrorMessage, "'Paris'")
}

func TestCityGuard_Passes(t *testing.T) {
	g := NewCityGuard("Paris")
	cases := []struct {
		tool string
		args map[string]any
	}{
		{"get_weather_stateful", map[string]any{"city": "London"}},
		{"get_weather", map[string]any{"city": "Paris"}},
		{"say_hello", map[string]any{"name": "Paris"}},
		{"get_weather_stateful", map[string]any{}},
		{"get_weather_stateful", map[string]any{"city": 42}},
		{"get_weather_stateful", map[string]any{"city": "Paris, France"}},
	}
	for _, tc := range cases {
		state := core.MapState{}
		_, blocked := g.CheckToolCall(tc.tool, tc.args, state)
		assert.False(t, blocked, "%s %v", tc.tool, tc.args)
		assert.Empty(t, state)
	}
}

func TestCityGuard_CustomTools(t *testing.T) {
	g := NewCityGuard("Paris", "get_weather", "get_weather_stateful")
	_, blocked := g.CheckToolCall("get_weather", map[string]any{"city": "paris"}, core.MapState{})
	assert.True(t, blocked)
}

func TestChain_FirstHitWinsAndObserves(t *testing.T) {
	obs := &trips{}
	c := NewChain(func(o *ChainOptions) { o.Observer = obs }).
		AddInput(NewKeywordGuard("BLOCK"), NewKeywordGuard("STOP")).
		AddTool(NewCityGuard("Paris"))

	reply, blocked := c.CheckInput("block and stop", core.MapState{})
	require.True(t, blocked)
	assert.Contains(t, reply, "'BLOCK'")

	_, blocked = c.CheckInput("fine", core.MapState{})
	assert.False(t, blocked)

	_, blocked = c.CheckToolCall("get_weather_stateful", map[string]any{"city": "paris"}, core.MapState{})
	assert.True(t, blocked)

	assert.Equal(t, []string{"keyword/input", "city/tool"}, obs.seen)
}

func TestChain_BeforeModelUsesTurnInput(t *testing.T) {
	c := NewChain().AddInput(NewKeywordGuard("BLOCK"))
	rc := newRunContext("BLOCK the request for weather in Tokyo")
	cbCtx := core.NewCallbackContext(rc)

	resp, err := c.BeforeModel()(cbCtx, &model.Request{})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "I cannot process this request because it contains the blocked keyword 'BLOCK'.", resp.Content.Text())
	assert.Equal(t, map[string]any{StateKeyKeywordTriggered: true}, rc.StateDelta)
}

func TestChain_BeforeModelIgnoresOlderTurns(t *testing.T) {
	c := NewChain().AddInput(NewKeywordGuard("BLOCK"))
	rc := newRunContext("Hello again")
	req := &model.Request{Contents: []core.Content{
		core.NewTextContent(core.RoleUser, "BLOCK the request"),
		core.NewTextContent(core.RoleAssistant, "I cannot process this request"),
		core.NewTextContent(core.RoleUser, "Hello again"),
	}}

	resp, err := c.BeforeModel()(core.NewCallbackContext(rc), req)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, rc.StateDelta)
}

func TestLatestUserText_FallsBackToRequest(t *testing.T) {
	req := &model.Request{Contents: []core.Content{
		core.NewTextContent(core.RoleUser, "first"),
		core.NewTextContent(core.RoleUser, "second"),
	}}
	assert.Equal(t, "second", LatestUserText(nil, req))
	assert.Equal(t, "", LatestUserText(nil, nil))
	assert.Equal(t, "", LatestUserText(nil, &model.Request{}))
}

func TestChain_BeforeToolStagesDelta(t *testing.T) {
	c := NewChain().AddTool(NewCityGuard("Paris"))
	toolCtx := core.NewToolContext(newRunContext("How about Paris?"), "fc-1")
	weather := tool.NewFunctionTool("get_weather_stateful", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		t.Fatal("tool must not run")
		return nil, nil
	})

	out, err := c.BeforeTool()(weather, map[string]any{"city": "Paris"}, toolCtx)
	require.NoError(t, err)
	res, ok := tool.ResultFrom(out)
	require.True(t, ok)
	assert.False(t, res.IsSuccess())
	assert.Equal(t, map[string]any{StateKeyToolTriggered: true}, toolCtx.StateDelta())

	out, err = c.BeforeTool()(weather, map[string]any{"city": "London"}, toolCtx)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestChain_Callbacks(t *testing.T) {
	set := NewChain().Callbacks()
	assert.Len(t, set.BeforeModel, 1)
	assert.Len(t, set.BeforeTool, 1)
}

// randomCase flips the case of each rune in s.
func randomCase(rt *rapid.T, s string) string {
	var b strings.Builder
	for _, r := range s {
		if rapid.Bool().Draw(rt, "upper") {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	return b.String()
}

func TestProperty_KeywordCaseInsensitive(t *testing.T) {
	g := NewKeywordGuard("BLOCK")
	rapid.Check(t, func(rt *rapid.T) {
		prefix := rapid.StringMatching(`[a-z ]{0,10}`).Draw(rt, "prefix")
		suffix := rapid.StringMatching(`[a-z ]{0,10}`).Draw(rt, "suffix")
		text := prefix + randomCase(rt, "block") + suffix

		state := core.MapState{}
		if _, blocked := g.CheckInput(text, state); !blocked {
			rt.Fatalf("%q was not blocked", text)
		}
		if state[StateKeyKeywordTriggered] != true {
			rt.Fatalf("flag not set for %q", text)
		}
	})
}

func TestProperty_TextWithoutKeywordPasses(t *testing.T) {
	g := NewKeywordGuard("BLOCK")
	rapid.Check(t, func(rt *rapid.T) {
		// no 'b' means no "block"
		text := rapid.StringMatching(`[ac-zAC-Z ?!.]{0,40}`).Draw(rt, "text")
		state := core.MapState{}
		if _, blocked := g.CheckInput(text, state); blocked || len(state) != 0 {
			rt.Fatalf("%q should pass", text)
		}
	})
}

func TestProperty_CityCaseInsensitive(t *testing.T) {
	g := NewCityGuard("Paris")
	rapid.Check(t, func(rt *rapid.T) {
		city := randomCase(rt, "paris")
		res, blocked := g.CheckToolCall("get_weather_stateful", map[string]any{"city": city}, core.MapState{})
		if !blocked {
			rt.Fatalf("%q was not blocked", city)
		}
		if !strings.Contains(res.ErrorMessage, "'Paris'") {
			rt.Fatalf("message %q", res.ErrorMessage)
		}
	})
}
