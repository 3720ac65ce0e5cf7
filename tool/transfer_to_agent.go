package tool

import (
	"github.com/hupe1980/weatherteam/core"
)

// TransferToAgentName is the name under which the transfer tool is exposed.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests orchestration transfer to a named sub-agent.
type transferToAgentTool struct{}

// NewTransferToAgentTool constructs the transfer tool instance.
func NewTransferToAgentTool() Tool { return &transferToAgentTool{} }

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	return "Transfer the conversation to another agent by name when that agent is better suited to answer."
}

func (t *transferToAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{"type": "string", "description": "Name of the agent to transfer to"},
		},
		"required": []string{"agent_name"},
	}
}

func (t *transferToAgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	agentName := StringArg(args, "agent_name", "")
	if agentName == "" {
		return nil, NewToolError(t.Name(), "field 'agent_name' must be a non-empty string", CodeValidation)
	}
	tc.TransferToAgent(agentName)
	return map[string]any{"transferred": true, "agent_name": agentName}, nil
}
