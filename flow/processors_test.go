package flow

import (
	"strings"
	"testing"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/internal/testutil"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

func TestTrimHistory_DropsOrphanedToolResponses(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent(core.RoleUser, "q1"),
		{Role: core.RoleAssistant},
		{Role: core.RoleTool},
		core.NewTextContent(core.RoleAssistant, "a1"),
	}

	got := trimHistory(contents, 2)
	if len(got) != 1 || got[0].Text() != "a1" {
		t.Fatalf("unexpected trimmed history %+v", got)
	}
	if len(trimHistory(contents, 0)) != 4 {
		t.Fatalf("zero limit keeps everything")
	}
}

func TestForeignContext(t *testing.T) {
	ev := testutil.NewEventBuilder().
		Author("greeting_agent").
		AssistantText("Hello, Bob!").
		Build()

	c, ok := foreignContext(ev)
	if !ok {
		t.Fatalf("expected context content")
	}
	if c.Role != core.RoleUser {
		t.Fatalf("foreign content must be user role, got %q", c.Role)
	}
	if c.Text() != "For context:\n[greeting_agent] said: Hello, Bob!" {
		t.Fatalf("unexpected text %q", c.Text())
	}

	resp := testutil.NewEventBuilder().
		Author("weather_agent").
		FunctionResponse("c1", "get_weather", tool.Success("sunny"), nil).
		Build()
	c, _ = foreignContext(resp)
	if !strings.Contains(c.Text(), "[weather_agent] `get_weather` tool returned result: {\"status\":\"success\",\"report\":\"sunny\"}") {
		t.Fatalf("unexpected response rendering %q", c.Text())
	}

	empty := testutil.NewEventBuilder().Author("x").AssistantText("  ").Build()
	if _, ok := foreignContext(empty); ok {
		t.Fatalf("blank text should be skipped")
	}
}

func TestTransferToolInjector(t *testing.T) {
	leaf := &testAgent{name: "farewell_agent", description: "Says goodbye"}
	root := &testAgent{name: "root", subs: []core.Agent{leaf}}
	rc := testutil.NewRunHarness(t.Context(), testutil.NewSessionBuilder().Build(), core.AgentInfo{Name: "root"}, "x").RunCtx

	req := &model.Request{Instructions: "Base."}
	inj := NewTransferToolInjector()
	if err := inj.ProcessRequest(rc, req, root); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if err := inj.ProcessRequest(rc, &model.Request{Tools: req.Tools}, root); err != nil {
		t.Fatalf("inject: %v", err)
	}

	if len(req.Tools) != 1 || req.Tools[0].Function.Name != tool.TransferToAgentName {
		t.Fatalf("transfer tool not injected once: %+v", req.Tools)
	}
	if !strings.HasPrefix(req.Instructions, "Base.") || !strings.Contains(req.Instructions, "- farewell_agent: Says goodbye") {
		t.Fatalf("roster missing: %q", req.Instructions)
	}

	req2 := &model.Request{}
	if err := inj.ProcessRequest(rc, req2, leaf); err != nil {
		t.Fatalf("inject leaf: %v", err)
	}
	if len(req2.Tools) != 0 {
		t.Fatalf("leaf must not receive transfer tool")
	}
}

func TestSelector(t *testing.T) {
	leaf := &testAgent{name: "leaf"}
	root := &testAgent{name: "root", subs: []core.Agent{leaf}}

	if _, ok := NewSelector().SelectFlow(leaf).(*SingleAgentFlow); !ok {
		t.Fatalf("leaf should use SingleAgentFlow")
	}
	if _, ok := NewSelector().SelectFlow(root).(*MultiAgentFlow); !ok {
		t.Fatalf("root should use MultiAgentFlow")
	}
}
