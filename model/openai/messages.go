package openai

import (
	"github.com/openai/openai-go"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/model"
)

// toolOutputs holds the encoded tool results of a request by call id.
type toolOutputs struct {
	byID  map[string]string
	order []string
}

// collectToolOutputs keeps the first result seen for each call id.
func collectToolOutputs(contents []core.Content) *toolOutputs {
	outs := &toolOutputs{byID: map[string]string{}}

	for _, c := range contents {
		if c.Role != core.RoleTool {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			id := fr.FunctionResponse.ID
			if _, seen := outs.byID[id]; seen {
				continue
			}
			outs.byID[id] = model.EncodeToolResponse(fr.FunctionResponse)
			outs.order = append(outs.order, id)
		}
	}

	return outs
}

// take removes the result for id so it is sent once.
func (o *toolOutputs) take(id string) (string, bool) {
	out, ok := o.byID[id]
	if ok {
		delete(o.byID, id)
	}
	return out, ok
}

// toMessages renders a request as chat messages. The API requires each tool
// message to follow the assistant message that made the call, so results are
// placed right after their call; results whose call is not in the history
// are appended at the end.
func toMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	outs := collectToolOutputs(req.Contents)
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Contents)+1)

	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}

	for _, c := range req.Contents {
		switch c.Role {
		case core.RoleTool:
		case core.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(c.Text()))
		case core.RoleAssistant:
			msgs = append(msgs, assistantMessages(c, outs)...)
		case core.RoleUser:
			msgs = append(msgs, openai.UserMessage(c.Text()))
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, openai.UserMessage(text))
			}
		}
	}

	for _, id := range outs.order {
		if out, ok := outs.take(id); ok {
			msgs = append(msgs, openai.ToolMessage(out, id))
		}
	}

	return msgs
}

// assistantMessages renders an assistant content followed by the results of
// the calls it made.
func assistantMessages(c core.Content, outs *toolOutputs) []openai.ChatCompletionMessageParamUnion {
	calls := functionCalls(c)
	if len(calls) == 0 {
		return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(c.Text())}
	}

	params := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
	for _, fc := range calls {
		params = append(params, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}

	msgs := []openai.ChatCompletionMessageParamUnion{{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: params},
	}}

	for _, fc := range calls {
		if out, ok := outs.take(fc.ID); ok {
			msgs = append(msgs, openai.ToolMessage(out, fc.ID))
		}
	}

	return msgs
}

func functionCalls(c core.Content) []core.FunctionCall {
	var calls []core.FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}
