package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/weatherteam/core"
	internalutil "github.com/hupe1980/weatherteam/internal/util"
	"github.com/hupe1980/weatherteam/model"
	"github.com/hupe1980/weatherteam/tool"
)

// InstructionsProcessor resolves the agent's instruction and renders it
// against the current state view.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets req.Instructions.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.Name(), "length", len(instructions))

	rendered, err := internalutil.RenderTemplate(instructions, runCtx.StateView())
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	req.Instructions = rendered

	return nil
}

// ContentsProcessor builds the conversation contents from session history.
// Events authored by other agents are rewritten as user-role context so the
// current agent never sees tool calls it cannot answer.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets req.Contents.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	var contents []core.Content

	for _, ev := range runCtx.GetSessionHistory() {
		switch ev.Author {
		case core.RoleUser, agent.Name():
			contents = append(contents, *ev.Content)
		default:
			if c, ok := foreignContext(ev); ok {
				contents = append(contents, c)
			}
		}
	}

	req.Contents = trimHistory(contents, agent.MaxHistoryMessages())

	return nil
}

// ForeignContextPrefix opens the user message that relays another agent's
// event.
const ForeignContextPrefix = "For context:"

// foreignContext presents another agent's event as a user message.
func foreignContext(ev core.Event) (core.Content, bool) {
	var lines []string
	for _, p := range ev.Content.Parts {
		switch pt := p.(type) {
		case core.TextPart:
			if strings.TrimSpace(pt.Text) == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("[%s] said: %s", ev.Author, pt.Text))
		case core.FunctionCallPart:
			lines = append(lines, fmt.Sprintf("[%s] called tool `%s` with parameters: %s",
				ev.Author, pt.FunctionCall.Name, pt.FunctionCall.Arguments))
		case core.FunctionResponsePart:
			lines = append(lines, fmt.Sprintf("[%s] `%s` tool returned result: %s",
				ev.Author, pt.FunctionResponse.Name, model.EncodeToolResponse(pt.FunctionResponse)))
		}
	}

	if len(lines) == 0 {
		return core.Content{}, false
	}

	return core.NewTextContent(core.RoleUser, ForeignContextPrefix+"\n"+strings.Join(lines, "\n")), true
}

// trimHistory keeps the most recent limit contents and drops leading tool
// responses whose originating call was cut off.
func trimHistory(contents []core.Content, limit int) []core.Content {
	if limit > 0 && len(contents) > limit {
		contents = contents[len(contents)-limit:]
	}
	for len(contents) > 0 && contents[0].Role == core.RoleTool {
		contents = contents[1:]
	}
	return contents
}

// ToolsProcessor advertises the agent's tools.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest appends one definition per registered tool.
func (p *ToolsProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, agent FlowAgent) error {
	for _, t := range agent.Tools() {
		req.Tools = append(req.Tools, toolDefinition(t))
	}
	return nil
}

func toolDefinition(t tool.Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// TransferToolInjector offers transfer_to_agent and lists the sub-agents in
// the instructions so the model knows whom it can delegate to.
type TransferToolInjector struct{}

// NewTransferToolInjector creates a new transfer injector.
func NewTransferToolInjector() *TransferToolInjector { return &TransferToolInjector{} }

// Name returns the processor's identifier.
func (p *TransferToolInjector) Name() string { return "transfer" }

// ProcessRequest adds the transfer tool once and appends the agent roster.
func (p *TransferToolInjector) ProcessRequest(_ *core.RunContext, req *model.Request, agent FlowAgent) error {
	if !canTransfer(agent) {
		return nil
	}

	if !req.HasTool(tool.TransferToAgentName) {
		req.Tools = append(req.Tools, toolDefinition(tool.NewTransferToAgentTool()))
	}

	var b strings.Builder
	b.WriteString("\n\nYou can delegate to the following agents with the '")
	b.WriteString(tool.TransferToAgentName)
	b.WriteString("' tool:\n")
	for _, sub := range agent.SubAgents() {
		fmt.Fprintf(&b, "- %s: %s\n", sub.Name(), sub.Description())
	}
	req.Instructions += strings.TrimRight(b.String(), "\n")

	return nil
}
