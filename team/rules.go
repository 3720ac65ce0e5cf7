package team

import (
	"context"
	"regexp"
	"strings"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/flow"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
	"github.com/hupe1980/weatherteam/weather"
)

var (
	placeRe  = regexp.MustCompile(`(?i)\b(?:in|about|for|at)\s+`)
	nameRe   = regexp.MustCompile(`(?i)\b(?:i am|i'm|my name is|this is)\s+([a-z][a-z'-]*)`)
	rosterRe = regexp.MustCompile(`(?m)^- ([A-Za-z0-9_]+): (.*)$`)
	wordRe   = regexp.MustCompile(`[a-z']+`)
)

var (
	greetingWords = []string{"hello", "hi", "hey", "greetings", "howdy"}
	farewellWords = []string{"bye", "goodbye", "farewell", "cya"}
	weatherWords  = []string{"weather", "temperature", "forecast"}
)

// RulesModel is an offline model that routes by keyword. It greets and
// says goodbye through delegation or the matching tool, calls the weather
// tool with the city named in the utterance, and phrases tool results. It
// only sees what a remote model would see: the request.
type RulesModel struct{}

// NewRulesModel creates a RulesModel.
func NewRulesModel() *RulesModel { return &RulesModel{} }

// Info implements model.Model.
func (m *RulesModel) Info() model.Info {
	return model.Info{Name: "rules", Provider: ProviderRules, SupportsTools: true}
}

// Generate implements model.Model.
func (m *RulesModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	return model.Single(ctx, func(context.Context) (*model.Response, error) {
		return m.respond(req), nil
	})
}

func (m *RulesModel) respond(req model.Request) *model.Response {
	if n := len(req.Contents); n > 0 && req.Contents[n-1].Role == core.RoleTool {
		return model.NewTextResponse(phraseToolResults(req.Contents[n-1]))
	}

	utterance := latestUtterance(req.Contents)
	words := wordSet(utterance)

	if city := extractCity(utterance); city != "" || hasAny(words, weatherWords) {
		if name, ok := weatherTool(req); ok && city != "" {
			return model.NewToolCallResponse("", name, map[string]any{"city": city})
		}
		if city == "" {
			return model.NewTextResponse("Which city would you like the weather for?")
		}
	}

	if hasAny(words, farewellWords) || strings.Contains(strings.ToLower(utterance), "see you") {
		if req.HasTool("say_goodbye") {
			return model.NewToolCallResponse("", "say_goodbye", map[string]any{})
		}
		if target := delegate(req, "farewell"); target != "" {
			return transferTo(target)
		}
	}

	if hasAny(words, greetingWords) {
		if req.HasTool("say_hello") {
			args := map[string]any{}
			if sm := nameRe.FindStringSubmatch(utterance); sm != nil {
				args["name"] = sm[1]
			}
			return model.NewToolCallResponse("", "say_hello", args)
		}
		if target := delegate(req, "greeting"); target != "" {
			return transferTo(target)
		}
	}

	return model.NewTextResponse("I can only help with weather, greetings, and farewells.")
}

// latestUtterance returns the newest user text that is not relayed context
// from another agent.
func latestUtterance(contents []core.Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		c := contents[i]
		if c.Role != core.RoleUser {
			continue
		}
		text := c.Text()
		if strings.HasPrefix(text, flow.ForeignContextPrefix) {
			continue
		}
		return text
	}
	return ""
}

// extractCity returns the words after the last "in", "about", "for" or
// "at", without trailing punctuation.
func extractCity(utterance string) string {
	locs := placeRe.FindAllStringIndex(utterance, -1)
	if len(locs) == 0 {
		return ""
	}
	rest := utterance[locs[len(locs)-1][1]:]
	return strings.TrimSpace(strings.TrimRight(rest, "?!. "))
}

func weatherTool(req model.Request) (string, bool) {
	for _, name := range []string{weather.ToolGetWeatherStateful, weather.ToolGetWeather} {
		if req.HasTool(name) {
			return name, true
		}
	}
	return "", false
}

// delegate picks the roster entry whose description mentions topic.
func delegate(req model.Request, topic string) string {
	if !req.HasTool(tool.TransferToAgentName) {
		return ""
	}
	for _, sm := range rosterRe.FindAllStringSubmatch(req.Instructions, -1) {
		if strings.Contains(strings.ToLower(sm[2]), topic) {
			return sm[1]
		}
	}
	return ""
}

func transferTo(target string) *model.Response {
	return model.NewToolCallResponse("", tool.TransferToAgentName, map[string]any{"agent_name": target})
}

func phraseToolResults(c core.Content) string {
	var lines []string
	for _, p := range c.Parts {
		frp, ok := p.(core.FunctionResponsePart)
		if !ok {
			continue
		}
		fr := frp.FunctionResponse

		if fr.Error != "" {
			lines = append(lines, "Sorry, something went wrong: "+fr.Error)
			continue
		}

		if res, ok := tool.ResultFrom(fr.Response); ok {
			if res.IsSuccess() {
				lines = append(lines, res.Report)
			} else {
				lines = append(lines, "Sorry, I couldn't get that for you. "+res.ErrorMessage)
			}
			continue
		}

		if s, ok := fr.Response.(string); ok {
			lines = append(lines, s)
			continue
		}

		lines = append(lines, model.EncodeToolResponse(fr))
	}
	return strings.Join(lines, "\n")
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		out[w] = true
	}
	return out
}

func hasAny(words map[string]bool, candidates []string) bool {
	for _, c := range candidates {
		if words[c] {
			return true
		}
	}
	return false
}
