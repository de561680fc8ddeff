package tools

import (
	"context"
	"encoding/json"
	"log/slog"
)

type workflowLogTool struct {
	logger *slog.Logger
}

// NewWorkflowLogTool returns the workflow_log adapter, which writes a log
// line from within a workflow for debugging and audit trails.
func NewWorkflowLogTool(logger *slog.Logger) Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &workflowLogTool{logger: logger}
}

func (t *workflowLogTool) Name() string { return "workflow_log" }

func (t *workflowLogTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Write a log line from within a workflow",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {"type": "string"},
    "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]}
  }
}`),
	}
}

func (t *workflowLogTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	msg := stringParam(params, "message", "")
	level := stringParam(params, "level", "info")

	switch level {
	case "debug":
		t.logger.DebugContext(ctx, msg)
	case "warn":
		t.logger.WarnContext(ctx, msg)
	case "error":
		t.logger.ErrorContext(ctx, msg)
	default:
		t.logger.InfoContext(ctx, msg)
	}
	return map[string]any{"logged": true, "level": level}, nil
}
