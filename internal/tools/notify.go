package tools

import (
	"context"
	"encoding/json"
	"log/slog"
)

type notifySendTool struct {
	*httpTool
	logger *slog.Logger
}

// NewNotifySendTool returns the notify_send adapter. Without a configured
// endpoint the notification degrades to a structured log line instead of
// failing the step.
func NewNotifySendTool(cfg HTTPConfig, logger *slog.Logger) Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &notifySendTool{httpTool: newHTTPTool(cfg), logger: logger}
}

func (t *notifySendTool) Name() string { return "notify_send" }

func (t *notifySendTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Send a notification to a channel",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {"type": "string", "minLength": 1},
    "channel": {"type": "string"},
    "recipient": {"type": "string"}
  }
}`),
	}
}

func (t *notifySendTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	if t.cfg.BaseURL == "" {
		t.logger.InfoContext(ctx, "notification",
			slog.String("channel", stringParam(params, "channel", "default")),
			slog.String("message", stringParam(params, "message", "")),
		)
		return map[string]any{"delivered": true, "transport": "log"}, nil
	}
	return t.post(ctx, t.Name(), "/notifications", params)
}
