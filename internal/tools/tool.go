package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Tool is an executable adapter a workflow step can invoke.
type Tool interface {
	Name() string
	Schema() ToolSchema
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// ToolSchema describes the input contract of a tool.
type ToolSchema struct {
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ToolError is the uniform failure shape for every tool invocation.
// Retriable marks transient failures the engine may retry; validation
// failures and unknown tools are always terminal.
type ToolError struct {
	Tool      string `json:"tool"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
	Cause     error  `json:"-"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a terminal (non-retriable) tool error.
func NewToolError(tool, format string, args ...any) *ToolError {
	return &ToolError{Tool: tool, Message: fmt.Sprintf(format, args...)}
}

// NewRetriableError creates a transient tool error the engine may retry.
func NewRetriableError(tool, format string, args ...any) *ToolError {
	return &ToolError{Tool: tool, Message: fmt.Sprintf(format, args...), Retriable: true}
}

// IsRetriable reports whether err is a tool error marked transient.
func IsRetriable(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr) && toolErr.Retriable
}
