// Package tool implements the function / tool calling subsystem that lets
// agents invoke structured capabilities with schema validated arguments,
// consistent error handling and a uniform success/error result envelope.
package tool

import (
	"fmt"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for parameters
//   - Report domain failures as a Result with status "error" rather than a Go error
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments and its ToolContext.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Status values of a Result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the envelope every domain tool returns: either a success with a
// human readable report or an error with a message. Exactly one of Report
// and ErrorMessage is set.
type Result struct {
	Status       string `json:"status"`
	Report       string `json:"report,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Success builds a success Result.
func Success(report string) Result { return Result{Status: StatusSuccess, Report: report} }

// Failure builds an error Result.
func Failure(msg string) Result { return Result{Status: StatusError, ErrorMessage: msg} }

// IsSuccess reports whether the result carries a report.
func (r Result) IsSuccess() bool { return r.Status == StatusSuccess }

// Text returns the report or the error message.
func (r Result) Text() string {
	if r.IsSuccess() {
		return r.Report
	}
	return r.ErrorMessage
}

// ResultFrom recovers a Result from a function response payload, which may be
// the original struct or its JSON-decoded map form.
func ResultFrom(v any) (Result, bool) {
	switch r := v.(type) {
	case Result:
		return r, true
	case *Result:
		if r == nil {
			return Result{}, false
		}
		return *r, true
	case map[string]any:
		status, _ := r["status"].(string)
		if status != StatusSuccess && status != StatusError {
			return Result{}, false
		}
		report, _ := r["report"].(string)
		msg, _ := r["error_message"].(string)
		return Result{Status: status, Report: report, ErrorMessage: msg}, true
	default:
		return Result{}, false
	}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
