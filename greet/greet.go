// Package greet provides the greeting and farewell tools used by the
// specialist sub-agents.
package greet

import (
	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/tool"
)

// Tool names.
const (
	ToolSayHello   = "say_hello"
	ToolSayGoodbye = "say_goodbye"
)

// Hello greets name, or everyone when name is empty.
func Hello(name string) string {
	if name == "" {
		return "Hello there!"
	}
	return "Hello, " + name + "!"
}

// Goodbye returns the farewell message.
func Goodbye() string { return "Goodbye! Have a great day." }

// NewSayHelloTool exposes Hello as say_hello.
func NewSayHelloTool() tool.Tool {
	return tool.NewFunctionTool(
		ToolSayHello,
		"Provides a simple greeting. If a name is provided, it will be used.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "The name of the person to greet. Defaults to a generic greeting if not provided.",
				},
			},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return Hello(tool.StringArg(args, "name", "")), nil
		},
	)
}

// NewSayGoodbyeTool exposes Goodbye as say_goodbye.
func NewSayGoodbyeTool() tool.Tool {
	return tool.NewFunctionTool(
		ToolSayGoodbye,
		"Provides a simple farewell message to conclude the conversation.",
		nil,
		func(*core.ToolContext, map[string]any) (any, error) {
			return Goodbye(), nil
		},
	)
}
