package openai

import (
	"sort"
	"strings"

	"github.com/openai/openai-go"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/model"
)

// pendingCall is a tool call whose id, name and arguments arrive in pieces.
type pendingCall struct {
	id, name string
	args     strings.Builder
}

func (p *pendingCall) call() core.FunctionCall {
	return core.FunctionCall{ID: p.id, Name: p.name, Arguments: p.args.String()}
}

// streamAccumulator turns completion chunks into partial responses and one
// final response per finished choice.
type streamAccumulator struct {
	text  strings.Builder
	calls map[int64]*pendingCall
}

// add consumes one chunk and returns the responses it produces, in order.
func (a *streamAccumulator) add(chunk openai.ChatCompletionChunk) []model.Response {
	var out []model.Response

	for _, ch := range chunk.Choices {
		if d := ch.Delta.Content; d != "" {
			a.text.WriteString(d)
			out = append(out, partial(core.TextPart{Text: d}))
		}

		for _, tc := range ch.Delta.ToolCalls {
			pc := a.pending(tc.Index)
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
			out = append(out, partial(core.FunctionCallPart{FunctionCall: pc.call()}))
		}

		if ch.FinishReason != "" {
			out = append(out, a.final(chunk.ID, ch.FinishReason))
		}
	}

	return out
}

func (a *streamAccumulator) pending(index int64) *pendingCall {
	if a.calls == nil {
		a.calls = map[int64]*pendingCall{}
	}
	pc, ok := a.calls[index]
	if !ok {
		pc = &pendingCall{}
		a.calls[index] = pc
	}
	return pc
}

// final assembles the text and the calls ordered by their stream index.
func (a *streamAccumulator) final(id, reason string) model.Response {
	parts := make([]core.Part, 0, len(a.calls)+1)
	if a.text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: a.text.String()})
	}

	indexes := make([]int64, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	for _, i := range indexes {
		parts = append(parts, core.FunctionCallPart{FunctionCall: a.calls[i].call()})
	}

	return model.Response{
		ID:           id,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: reason,
	}
}

func partial(p core.Part) model.Response {
	return model.Response{
		Partial: true,
		Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{p}},
	}
}
